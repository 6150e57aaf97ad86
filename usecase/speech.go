package usecase

import (
	"regexp"
	"strings"

	"github.com/roberta039/Gym-Trainer/domain"
)

// DefaultSpeechMaxChars keeps synthesis latency low.
const DefaultSpeechMaxChars = 500

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	markerReplacer = strings.NewReplacer(domain.GraphicsOpenMarker, "", domain.GraphicsCloseMarker, "")
)

// SpeakableText strips markup and drawing markers from a reply and caps the
// result to maxChars runes.
func SpeakableText(text string, maxChars int) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(markerReplacer.Replace(text))
	if maxChars <= 0 {
		maxChars = DefaultSpeechMaxChars
	}
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text
}
