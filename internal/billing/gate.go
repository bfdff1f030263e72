package billing

import "context"

// GateRequest identifies the user and target for a permission decision.
type GateRequest struct {
	UserID     string // Requesting user ID.
	AIModelID  string // Target AI model ID, when model-scoped.
	NodeType   string // Workflow node type, when node-scoped.
	ModuleType string // Module type, when module-scoped.
}

// GateDecision is an allow/deny answer with optional free-usage entitlement.
type GateDecision struct {
	Allowed bool   // Whether the request may proceed.
	Reason  string // Denial reason, when not allowed.
	IsFree  bool   // Whether usage is free for this user.
}

// GateUsage reports one completed attempt back to the gate for quota tracking.
type GateUsage struct {
	UserID      string // Requesting user ID.
	AIModelID   string // Target AI model ID.
	NodeType    string // Workflow node type.
	ModuleType  string // Module type.
	IsFreeUsage bool   // Whether the attempt consumed a free-usage entitlement.
}

// FreeUsage describes remaining free-usage quota.
type FreeUsage struct {
	FreeUsageRemaining int // Free attempts left today.
}

// Gate is the permission collaborator consulted before charging. The engine
// does not implement membership levels or quotas itself; it only composes
// the gate's decisions with charging.
type Gate interface {
	// CheckPermission decides whether the user may run the operation and
	// whether it is free for them.
	CheckPermission(ctx context.Context, req GateRequest) (GateDecision, error)
	// CheckConcurrencyLimit decides whether the user may start another task.
	CheckConcurrencyLimit(ctx context.Context, userID string) (GateDecision, error)
	// RecordUsage reports a completed attempt for quota tracking.
	RecordUsage(ctx context.Context, usage GateUsage) error
	// CheckFreeUsageLimit returns the remaining free-usage quota.
	CheckFreeUsageLimit(ctx context.Context, req GateRequest) (FreeUsage, error)
}

// allowAllGate permits everything and grants no free usage. It stands in
// when no gate is wired.
type allowAllGate struct{}

func (allowAllGate) CheckPermission(ctx context.Context, req GateRequest) (GateDecision, error) {
	return GateDecision{Allowed: true}, nil
}

func (allowAllGate) CheckConcurrencyLimit(ctx context.Context, userID string) (GateDecision, error) {
	return GateDecision{Allowed: true}, nil
}

func (allowAllGate) RecordUsage(ctx context.Context, usage GateUsage) error { return nil }

func (allowAllGate) CheckFreeUsageLimit(ctx context.Context, req GateRequest) (FreeUsage, error) {
	return FreeUsage{}, nil
}
