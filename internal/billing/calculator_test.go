package billing

import (
	"testing"

	"github.com/pixwave-ai/pixwave-server/internal/models"
	"gorm.io/datatypes"
)

func testRule(billingType models.BillingType, baseCredits int64, config string, prices ...models.BillingPrice) *models.BillingRule {
	rule := &models.BillingRule{
		ID:          "rule-test",
		Name:        "test rule",
		BillingType: billingType,
		BaseCredits: baseCredits,
		IsActive:    true,
		Prices:      prices,
	}
	if config != "" {
		rule.Config = datatypes.JSON(config)
	}
	return rule
}

func testPrice(dimension, value string, creditsPerUnit int64) models.BillingPrice {
	return models.BillingPrice{Dimension: dimension, Value: value, CreditsPerUnit: creditsPerUnit, IsActive: true}
}

func TestCalculateDefaultTariff(t *testing.T) {
	if got := calculateCredits(nil, Params{Duration: 3.4}); got != 34 {
		t.Fatalf("duration tariff: got %d, want 34", got)
	}
	if got := calculateCredits(nil, Params{Quantity: 5}); got != 100 {
		t.Fatalf("quantity tariff: got %d, want 100", got)
	}
	if got := calculateCredits(nil, Params{}); got != 0 {
		t.Fatalf("empty tariff: got %d, want 0", got)
	}
}

func TestCalculateInactiveRuleIsFree(t *testing.T) {
	rule := testRule(models.BillingTypePerRequest, 100, "")
	rule.IsActive = false
	if got := calculateCredits(rule, Params{Quantity: 4}); got != 0 {
		t.Fatalf("inactive rule: got %d, want 0", got)
	}
}

func TestCalculatePerRequest(t *testing.T) {
	rule := testRule(models.BillingTypePerRequest, 25, "")
	if got := calculateCredits(rule, Params{Quantity: 99}); got != 25 {
		t.Fatalf("per request: got %d, want 25", got)
	}
}

func TestCalculatePerImageBasePrice(t *testing.T) {
	rule := testRule(models.BillingTypePerImage, 20, "")
	if got := calculateCredits(rule, Params{Quantity: 3}); got != 60 {
		t.Fatalf("per image base: got %d, want 60", got)
	}
	if got := calculateCredits(rule, Params{}); got != 20 {
		t.Fatalf("per image default quantity: got %d, want 20", got)
	}
}

func TestCalculatePerImageExactResolutionMatch(t *testing.T) {
	rule := testRule(models.BillingTypePerImage, 20, "",
		testPrice(models.DimensionResolution, "1024x1024", 15),
		testPrice(models.DimensionResolution, "2048x2048", 40),
	)
	if got := calculateCredits(rule, Params{Quantity: 2, Resolution: "1024X1024"}); got != 30 {
		t.Fatalf("exact match is case-insensitive: got %d, want 30", got)
	}
}

func TestCalculatePerImagePixelNearestMatch(t *testing.T) {
	rule := testRule(models.BillingTypePerImage, 20, "",
		testPrice(models.DimensionResolution, "1024x1024", 15),
		testPrice(models.DimensionResolution, "2048x2048", 40),
	)
	// "1024*1024" is not an exact string match but parses to the same pixel count.
	if got := calculateCredits(rule, Params{Quantity: 2, Resolution: "1024*1024"}); got != 30 {
		t.Fatalf("pixel match: got %d, want 30", got)
	}
	// "uhd" (3840x2160) is nearer 2048x2048 than 1024x1024.
	if got := calculateCredits(rule, Params{Quantity: 1, Resolution: "uhd"}); got != 40 {
		t.Fatalf("alias pixel match: got %d, want 40", got)
	}
	// A bare number reads as a square.
	if got := calculateCredits(rule, Params{Quantity: 1, Resolution: "1000"}); got != 15 {
		t.Fatalf("square pixel match: got %d, want 15", got)
	}
}

func TestCalculatePerImageUnparseableResolutionFallsBack(t *testing.T) {
	rule := testRule(models.BillingTypePerImage, 20, "",
		testPrice(models.DimensionResolution, "1024x1024", 15),
	)
	if got := calculateCredits(rule, Params{Quantity: 2, Resolution: "portrait"}); got != 40 {
		t.Fatalf("unparseable resolution: got %d, want 40", got)
	}
}

func TestCalculatePerDuration(t *testing.T) {
	rule := testRule(models.BillingTypePerDuration, 10, "")
	if got := calculateCredits(rule, Params{Duration: 3.5}); got != 35 {
		t.Fatalf("no rounding by default: got %d, want 35", got)
	}
	if got := calculateCredits(rule, Params{}); got != 0 {
		t.Fatalf("no duration: got %d, want 0", got)
	}

	roundingRule := testRule(models.BillingTypePerDuration, 10, `{"roundUp":true}`)
	if got := calculateCredits(roundingRule, Params{Duration: 3.2}); got != 40 {
		t.Fatalf("round up: got %d, want 40", got)
	}
}

func TestCalculateDurationResolutionTiered(t *testing.T) {
	rule := testRule(models.BillingTypeDurationResolution, 0, "",
		testPrice(models.DimensionResolution, "720p_5", 50),
		testPrice(models.DimensionResolution, "720p_10", 90),
		testPrice(models.DimensionResolution, "1080p_5", 80),
	)
	// Smallest tier covering 6 seconds is the 10-second tier.
	if got := calculateCredits(rule, Params{Resolution: "720p", Duration: 6}); got != 90 {
		t.Fatalf("tier above: got %d, want 90", got)
	}
	if got := calculateCredits(rule, Params{Resolution: "720p", Duration: 5}); got != 50 {
		t.Fatalf("tier exact: got %d, want 50", got)
	}
	// Nothing covers 30 seconds; the largest tier is the fallback.
	if got := calculateCredits(rule, Params{Resolution: "720p", Duration: 30}); got != 90 {
		t.Fatalf("tier fallback: got %d, want 90", got)
	}
	// 1000 is nearer 1080 than 720.
	if got := calculateCredits(rule, Params{Resolution: "1000p", Duration: 5}); got != 80 {
		t.Fatalf("nearest resolution: got %d, want 80", got)
	}
}

func TestCalculateDurationResolutionLinear(t *testing.T) {
	rule := testRule(models.BillingTypeDurationResolution, 0, "",
		testPrice(models.DimensionResolution, "720p", 12),
	)
	// Linear pricing ceiling-rounds by default.
	if got := calculateCredits(rule, Params{Resolution: "720p", Duration: 3.2}); got != 48 {
		t.Fatalf("linear round up: got %d, want 48", got)
	}

	noRounding := testRule(models.BillingTypeDurationResolution, 0, `{"roundUp":false}`,
		testPrice(models.DimensionResolution, "720p", 12),
	)
	if got := calculateCredits(noRounding, Params{Resolution: "720p", Duration: 3.5}); got != 42 {
		t.Fatalf("linear no rounding: got %d, want 42", got)
	}
}

func TestCalculateDurationResolutionMissingInputs(t *testing.T) {
	rule := testRule(models.BillingTypeDurationResolution, 0, "",
		testPrice(models.DimensionResolution, "720p", 12),
	)
	if got := calculateCredits(rule, Params{Resolution: "720p"}); got != 0 {
		t.Fatalf("missing duration: got %d, want 0", got)
	}
	if got := calculateCredits(rule, Params{Duration: 5}); got != 0 {
		t.Fatalf("missing resolution: got %d, want 0", got)
	}

	empty := testRule(models.BillingTypeDurationResolution, 0, "")
	if got := calculateCredits(empty, Params{Resolution: "720p", Duration: 5}); got != 0 {
		t.Fatalf("no price rows: got %d, want 0", got)
	}
}

func TestCalculatePerCharacter(t *testing.T) {
	rule := testRule(models.BillingTypePerCharacter, 0, "",
		models.BillingPrice{Dimension: models.DimensionMode, Value: "tts", CreditsPerUnit: 5, UnitSize: 100, IsActive: true},
	)
	if got := calculateCredits(rule, Params{CharacterCount: 250}); got != 15 {
		t.Fatalf("per character: got %d, want 15", got)
	}
	if got := calculateCredits(rule, Params{CharacterCount: 100}); got != 5 {
		t.Fatalf("per character exact unit: got %d, want 5", got)
	}
	if got := calculateCredits(rule, Params{}); got != 0 {
		t.Fatalf("no characters: got %d, want 0", got)
	}

	noUnitSize := testRule(models.BillingTypePerCharacter, 0, "",
		testPrice(models.DimensionMode, "tts", 5),
	)
	// UnitSize defaults to 100 characters.
	if got := calculateCredits(noUnitSize, Params{CharacterCount: 101}); got != 10 {
		t.Fatalf("default unit size: got %d, want 10", got)
	}
}

func TestCalculateDurationModePerSecond(t *testing.T) {
	rule := testRule(models.BillingTypeDurationMode, 0, "",
		testPrice(models.DimensionMode, "fast", 8),
		testPrice(models.DimensionMode, "std", 4),
	)
	if got := calculateCredits(rule, Params{Mode: "fast", Duration: 2.1}); got != 24 {
		t.Fatalf("per second rounds up: got %d, want 24", got)
	}
	// Unknown modes fall back to the standard row.
	if got := calculateCredits(rule, Params{Mode: "turbo", Duration: 2}); got != 8 {
		t.Fatalf("std fallback: got %d, want 8", got)
	}
	if got := calculateCredits(rule, Params{Mode: "fast"}); got != 0 {
		t.Fatalf("missing duration: got %d, want 0", got)
	}
	if got := calculateCredits(rule, Params{Duration: 2}); got != 0 {
		t.Fatalf("missing mode: got %d, want 0", got)
	}
}

func TestCalculateDurationModePerRequest(t *testing.T) {
	rule := testRule(models.BillingTypeDurationMode, 0, `{"pricingUnit":"per_request"}`,
		testPrice(models.DimensionMode, "fast", 8),
	)
	if got := calculateCredits(rule, Params{Mode: "fast", Quantity: 3}); got != 24 {
		t.Fatalf("per request: got %d, want 24", got)
	}
	if got := calculateCredits(rule, Params{Mode: "fast"}); got != 8 {
		t.Fatalf("per request default quantity: got %d, want 8", got)
	}
}

func TestCalculateOperationMode(t *testing.T) {
	rule := testRule(models.BillingTypeOperationMode, 10, "",
		testPrice(models.DimensionOperationType, "Imagine", 20),
		testPrice(models.DimensionOperationType, "Upscale", 10),
		testPrice(models.DimensionMode, "Relax", 1),
		testPrice(models.DimensionMode, "Fast", 3),
	)
	// The mode price multiplies the operation price.
	if got := calculateCredits(rule, Params{OperationType: "Upscale", Mode: "Fast"}); got != 30 {
		t.Fatalf("operation x mode: got %d, want 30", got)
	}
	// Defaults are Imagine and Relax.
	if got := calculateCredits(rule, Params{}); got != 20 {
		t.Fatalf("defaults: got %d, want 20", got)
	}
}

func TestCalculateOperationModeFallbacks(t *testing.T) {
	noModeRows := testRule(models.BillingTypeOperationMode, 10, "",
		testPrice(models.DimensionOperationType, "Imagine", 20),
	)
	if got := calculateCredits(noModeRows, Params{OperationType: "Imagine", Mode: "Fast"}); got != 20 {
		t.Fatalf("no mode row: got %d, want 20", got)
	}

	unknownOperation := testRule(models.BillingTypeOperationMode, 10, "",
		testPrice(models.DimensionOperationType, "Imagine", 20),
	)
	if got := calculateCredits(unknownOperation, Params{OperationType: "Blend"}); got != 20 {
		t.Fatalf("any operation row: got %d, want 20", got)
	}

	noRows := testRule(models.BillingTypeOperationMode, 10, "")
	if got := calculateCredits(noRows, Params{OperationType: "Blend"}); got != 10 {
		t.Fatalf("base credits fallback: got %d, want 10", got)
	}
}

func TestCalculateNeverNegative(t *testing.T) {
	rule := testRule(models.BillingTypePerRequest, -50, "")
	if got := calculateCredits(rule, Params{}); got != 0 {
		t.Fatalf("negative base clamps: got %d, want 0", got)
	}
}

func TestCalculatePerImageNegativeQuantityClampsToZero(t *testing.T) {
	rule := testRule(models.BillingTypePerImage, 20, "",
		testPrice(models.DimensionResolution, "1024x1024", 15),
	)
	// A negative quantity is not coerced to 1; the product clamps to zero.
	if got := calculateCredits(rule, Params{Quantity: -3}); got != 0 {
		t.Fatalf("negative quantity base path: got %d, want 0", got)
	}
	if got := calculateCredits(rule, Params{Quantity: -3, Resolution: "1024x1024"}); got != 0 {
		t.Fatalf("negative quantity price path: got %d, want 0", got)
	}
}

func TestCalculateDurationModeNegativeQuantityClampsToZero(t *testing.T) {
	rule := testRule(models.BillingTypeDurationMode, 0, `{"pricingUnit":"per_request"}`,
		testPrice(models.DimensionMode, "fast", 8),
	)
	if got := calculateCredits(rule, Params{Mode: "fast", Quantity: -2}); got != 0 {
		t.Fatalf("negative quantity per request: got %d, want 0", got)
	}
}

func TestPixelCount(t *testing.T) {
	cases := []struct {
		resolution string
		pixels     int64
	}{
		{"1024x1024", 1024 * 1024},
		{"1024*1024", 1024 * 1024},
		{"4K", 3840 * 2160},
		{"hd", 1280 * 720},
		{"512", 512 * 512},
		{"portrait", 0},
	}
	for _, tc := range cases {
		if got := pixelCount(tc.resolution); got != tc.pixels {
			t.Fatalf("pixelCount(%q): got %d, want %d", tc.resolution, got, tc.pixels)
		}
	}
}
