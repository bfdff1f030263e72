package billing

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pixwave-ai/pixwave-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Default tariff applied when no rule resolves.
const (
	defaultCreditsPerSecond = 10
	defaultCreditsPerImage  = 20
)

// ruleConfig holds the strongly typed strategy options decoded from a
// rule's Config blob.
type ruleConfig struct {
	RoundUp     *bool  `json:"roundUp"`     // Ceiling-round durations before multiplying.
	PricingUnit string `json:"pricingUnit"` // "per_second" (default) or "per_request".
}

// pricingUnitPerRequest switches DURATION_MODE billing from per-second to
// per-request pricing.
const pricingUnitPerRequest = "per_request"

// roundUp returns the configured rounding flag falling back to the given default.
func (c ruleConfig) roundUp(def bool) bool {
	if c.RoundUp == nil {
		return def
	}
	return *c.RoundUp
}

// decodeRuleConfig parses the config blob; malformed blobs read as empty.
func decodeRuleConfig(raw datatypes.JSON) ruleConfig {
	var cfg ruleConfig
	if len(raw) == 0 {
		return cfg
	}
	if errDecode := json.Unmarshal(raw, &cfg); errDecode != nil {
		log.Debugf("billing: malformed rule config: %v", errDecode)
	}
	return cfg
}

// calculateCredits computes the integer credit cost for the given rule and
// params. A nil rule applies the default tariff; an inactive rule costs
// nothing. The result is always non-negative.
func calculateCredits(rule *models.BillingRule, p Params) int64 {
	if rule == nil {
		return clampCredits(defaultTariff(p))
	}
	if !rule.IsActive {
		return 0
	}

	var credits float64
	switch rule.BillingType {
	case models.BillingTypePerRequest:
		credits = float64(rule.BaseCredits)
	case models.BillingTypePerImage:
		credits = calculatePerImage(rule, p)
	case models.BillingTypePerDuration:
		credits = calculatePerDuration(rule, p)
	case models.BillingTypeDurationResolution:
		credits = calculateDurationResolution(rule, p)
	case models.BillingTypePerCharacter:
		credits = calculatePerCharacter(rule, p)
	case models.BillingTypeDurationMode:
		credits = calculateDurationMode(rule, p)
	case models.BillingTypeOperationMode:
		credits = calculateOperationMode(rule, p)
	default:
		// Unknown strategy: the base price is the only safe answer.
		log.Debugf("billing: unsupported billing type %q on rule %s", rule.BillingType, rule.ID)
		credits = float64(rule.BaseCredits)
	}

	return clampCredits(credits)
}

// defaultTariff prices requests that no rule covers: video by the second,
// images by the sheet, anything else free.
func defaultTariff(p Params) float64 {
	if p.Duration > 0 {
		return p.Duration * defaultCreditsPerSecond
	}
	if p.Quantity > 0 {
		return float64(p.Quantity) * defaultCreditsPerImage
	}
	return 0
}

// clampCredits rounds to the nearest integer and floors at zero.
func clampCredits(credits float64) int64 {
	rounded := int64(math.Round(credits))
	if rounded < 0 {
		return 0
	}
	return rounded
}

// calculatePerImage prices by image count. When resolution price rows exist
// it prefers an exact case-insensitive value match, then the row whose pixel
// count is nearest the requested resolution, and only then the base price.
func calculatePerImage(rule *models.BillingRule, p Params) float64 {
	// Only an absent quantity defaults to 1; a negative one is kept and
	// floors to zero at the final clamp.
	quantity := p.Quantity
	if quantity == 0 {
		quantity = 1
	}

	if p.Resolution != "" {
		resPrices := pricesByDimension(rule, models.DimensionResolution)
		if len(resPrices) > 0 {
			for _, price := range resPrices {
				if strings.EqualFold(price.Value, p.Resolution) {
					return float64(price.CreditsPerUnit) * float64(quantity)
				}
			}

			if targetPixels := pixelCount(p.Resolution); targetPixels > 0 {
				best := resPrices[0]
				bestDiff := absInt64(pixelCount(best.Value) - targetPixels)
				for _, price := range resPrices[1:] {
					if diff := absInt64(pixelCount(price.Value) - targetPixels); diff < bestDiff {
						best = price
						bestDiff = diff
					}
				}
				return float64(best.CreditsPerUnit) * float64(quantity)
			}
		}
	}

	return float64(rule.BaseCredits) * float64(quantity)
}

// calculatePerDuration prices linearly by duration, optionally ceiling-rounded.
func calculatePerDuration(rule *models.BillingRule, p Params) float64 {
	if p.Duration <= 0 {
		return 0
	}
	duration := p.Duration
	if decodeRuleConfig(rule.Config).roundUp(false) {
		duration = math.Ceil(duration)
	}
	return float64(rule.BaseCredits) * duration
}

// calculateDurationResolution prices by resolution tier. Price values are
// either bare resolutions ("720p", linear per-second pricing) or tiered
// ("720p_5", a flat price for up to that many seconds). The nearest
// configured resolution is chosen by leading-number distance; among tiers
// the smallest tier covering the requested duration wins, falling back to
// the largest tier.
func calculateDurationResolution(rule *models.BillingRule, p Params) float64 {
	if p.Duration <= 0 || p.Resolution == "" {
		return 0
	}

	resPrices := pricesByDimension(rule, models.DimensionResolution)
	if len(resPrices) == 0 {
		return 0
	}

	targetRes := leadingInt(p.Resolution)

	var resolutions []string
	seen := map[string]struct{}{}
	for _, price := range resPrices {
		base := strings.SplitN(price.Value, "_", 2)[0]
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		resolutions = append(resolutions, base)
	}

	matchedRes := resolutions[0]
	bestDistance := absInt64(int64(leadingInt(matchedRes)) - int64(targetRes))
	for _, res := range resolutions[1:] {
		if distance := absInt64(int64(leadingInt(res)) - int64(targetRes)); distance < bestDistance {
			matchedRes = res
			bestDistance = distance
		}
	}

	var tiers []models.BillingPrice
	for _, price := range resPrices {
		if strings.HasPrefix(price.Value, matchedRes+"_") {
			tiers = append(tiers, price)
		}
	}

	if len(tiers) > 0 {
		sort.SliceStable(tiers, func(i, j int) bool {
			return tierDuration(tiers[i].Value) < tierDuration(tiers[j].Value)
		})
		selected := tiers[len(tiers)-1]
		for _, tier := range tiers {
			if float64(tierDuration(tier.Value)) >= p.Duration {
				selected = tier
				break
			}
		}
		// Tiered prices are flat per clip: duration is not multiplied in.
		return float64(selected.CreditsPerUnit)
	}

	for _, price := range resPrices {
		if price.Value == matchedRes {
			duration := p.Duration
			if decodeRuleConfig(rule.Config).roundUp(true) {
				duration = math.Ceil(duration)
			}
			return duration * float64(price.CreditsPerUnit)
		}
	}

	log.Debugf("billing: no price row for matched resolution %s on rule %s", matchedRes, rule.ID)
	return 0
}

// calculatePerCharacter prices text length in units of UnitSize characters,
// rounded up. Only the first configured price row is consulted.
func calculatePerCharacter(rule *models.BillingRule, p Params) float64 {
	if p.CharacterCount <= 0 || len(rule.Prices) == 0 {
		return 0
	}
	price := rule.Prices[0]
	unitSize := price.UnitSize
	if unitSize <= 0 {
		unitSize = 100
	}
	units := (p.CharacterCount + unitSize - 1) / unitSize
	return float64(int64(units) * price.CreditsPerUnit)
}

// calculateDurationMode prices by mode. With pricingUnit "per_request" the
// mode price is multiplied by quantity; otherwise it is a per-second rate.
// An unknown mode falls back to "std"/"standard", then the first mode row.
func calculateDurationMode(rule *models.BillingRule, p Params) float64 {
	if p.Mode == "" {
		return 0
	}

	cfg := decodeRuleConfig(rule.Config)

	modePrice := findPrice(rule, models.DimensionMode, p.Mode)
	if modePrice == nil {
		modePrices := pricesByDimension(rule, models.DimensionMode)
		if len(modePrices) == 0 {
			return 0
		}
		for i := range modePrices {
			if modePrices[i].Value == "std" || modePrices[i].Value == "standard" {
				modePrice = &modePrices[i]
				break
			}
		}
		if modePrice == nil {
			modePrice = &modePrices[0]
		}
		log.Debugf("billing: mode %q not priced on rule %s, using %q", p.Mode, rule.ID, modePrice.Value)
	}

	if cfg.PricingUnit == pricingUnitPerRequest {
		quantity := p.Quantity
		if quantity == 0 {
			quantity = 1
		}
		return float64(int64(quantity) * modePrice.CreditsPerUnit)
	}

	if p.Duration <= 0 {
		return 0
	}
	duration := p.Duration
	if cfg.roundUp(true) {
		duration = math.Ceil(duration)
	}
	return duration * float64(modePrice.CreditsPerUnit)
}

// calculateOperationMode prices an operation type scaled by a mode
// multiplier. Both default for estimate display: "Imagine" and "Relax".
func calculateOperationMode(rule *models.BillingRule, p Params) float64 {
	operationType := p.OperationType
	if operationType == "" {
		operationType = "Imagine"
	}
	mode := p.Mode
	if mode == "" {
		mode = "Relax"
	}

	operationPrice := findPrice(rule, models.DimensionOperationType, operationType)
	if operationPrice == nil {
		anyOperation := pricesByDimension(rule, models.DimensionOperationType)
		if len(anyOperation) == 0 {
			return float64(rule.BaseCredits)
		}
		return float64(anyOperation[0].CreditsPerUnit)
	}

	modePrice := findPrice(rule, models.DimensionMode, mode)
	if modePrice == nil {
		return float64(operationPrice.CreditsPerUnit)
	}

	// The mode price acts as a multiplier, not an additive term.
	return float64(operationPrice.CreditsPerUnit) * float64(modePrice.CreditsPerUnit)
}

// pricesByDimension returns the rule's price rows on one dimension,
// preserving configured order.
func pricesByDimension(rule *models.BillingRule, dimension string) []models.BillingPrice {
	var prices []models.BillingPrice
	for _, price := range rule.Prices {
		if price.Dimension == dimension {
			prices = append(prices, price)
		}
	}
	return prices
}

// findPrice returns the rule's price row matching dimension and value exactly.
func findPrice(rule *models.BillingRule, dimension, value string) *models.BillingPrice {
	for i := range rule.Prices {
		if rule.Prices[i].Dimension == dimension && rule.Prices[i].Value == value {
			return &rule.Prices[i]
		}
	}
	return nil
}

// resolutionAliases maps common resolution names to pixel counts.
var resolutionAliases = map[string]int64{
	"2k":  2048 * 2048,
	"4k":  3840 * 2160,
	"8k":  7680 * 4320,
	"hd":  1280 * 720,
	"fhd": 1920 * 1080,
	"uhd": 3840 * 2160,
}

var dimensionsPattern = regexp.MustCompile(`(?i)(\d+)[x*](\d+)`)

// pixelCount estimates the pixel count of a resolution string. It accepts
// alias names, "WxH" and "W*H" forms, and treats a bare number as a square.
// Unparseable input counts as zero pixels.
func pixelCount(resolution string) int64 {
	lower := strings.ToLower(strings.TrimSpace(resolution))
	if pixels, ok := resolutionAliases[lower]; ok {
		return pixels
	}

	if match := dimensionsPattern.FindStringSubmatch(resolution); match != nil {
		width, _ := strconv.ParseInt(match[1], 10, 64)
		height, _ := strconv.ParseInt(match[2], 10, 64)
		return width * height
	}

	side := int64(leadingInt(resolution))
	return side * side
}

// leadingInt extracts the first run of digits in s, or zero.
func leadingInt(s string) int {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			value, _ := strconv.Atoi(s[start:i])
			return value
		}
	}
	if start >= 0 {
		value, _ := strconv.Atoi(s[start:])
		return value
	}
	return 0
}

// tierDuration extracts the duration tier from a value like "720p_5".
func tierDuration(value string) int {
	parts := strings.SplitN(value, "_", 2)
	if len(parts) != 2 {
		return 0
	}
	duration, _ := strconv.Atoi(parts[1])
	return duration
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
