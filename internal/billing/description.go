package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// Human labels for operation codes used in ledger descriptions.
var operationLabels = map[string]string{
	"IMAGE_GENERATION": "Image generation",
	"VIDEO_GENERATION": "Video generation",
	"TEXT_GENERATION":  "Text generation",
	"AUDIO_GENERATION": "Audio synthesis",
	"VIDEO_EDITING":    "Video editing",
	"IMAGE_EDITING":    "Image editing",
	"COMMERCIAL_VIDEO": "Commercial video",
}

var nodeTypeLabels = map[string]string{
	"aiImage":        "AI image",
	"aiVideo":        "AI video",
	"agent":          "AI text",
	"tts":            "Speech synthesis",
	"sora_video":     "Sora video",
	"sora_character": "Sora character",
	"midjourney":     "Midjourney",
	"image_editing":  "Image editing",
}

var moduleTypeLabels = map[string]string{
	"commercial-video": "Commercial video",
	"video-retalk":     "Video retalk",
	"video-upscale":    "Video upscale",
}

// consumeDescription builds the human ledger description for a charge.
func consumeDescription(p Params) string {
	var parts []string

	appendPart := func(part string) {
		for _, existing := range parts {
			if existing == part {
				return
			}
		}
		parts = append(parts, part)
	}

	if p.Operation != "" {
		if label, ok := operationLabels[p.Operation]; ok {
			appendPart(label)
		} else {
			appendPart(p.Operation)
		}
	}
	if p.NodeType != "" {
		if label, ok := nodeTypeLabels[p.NodeType]; ok {
			appendPart(label)
		} else {
			appendPart(p.NodeType)
		}
	}
	if p.ModuleType != "" {
		if label, ok := moduleTypeLabels[p.ModuleType]; ok {
			appendPart(label)
		} else {
			appendPart(p.ModuleType)
		}
	}

	if p.Duration > 0 {
		appendPart(strconv.FormatFloat(p.Duration, 'f', -1, 64) + "s")
	}
	if p.Quantity > 1 {
		appendPart(fmt.Sprintf("x%d", p.Quantity))
	}

	if len(parts) == 0 {
		return "Credits consumed"
	}
	return strings.Join(parts, " ")
}

// refundDescription builds the human ledger description for a refund.
func refundDescription(reason string, credits int64) string {
	return fmt.Sprintf("%s: refunded %d credits", reason, credits)
}
