package sentiment

import (
	"strings"
	"unicode"
)

// Label is a sentiment class.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Result pairs a label with a confidence in [0, 1].
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

const (
	polarConfidence   = 0.7
	neutralConfidence = 0.5
)

var positiveWords = wordSet(
	"good", "great", "excellent", "happy", "wonderful", "fantastic", "amazing", "love",
	"glad", "pleased", "grateful", "thankful", "thanks", "confident", "secure", "comfortable",
	"hopeful", "relieved", "excited", "nice", "better", "best", "enjoy", "safe",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "sad", "worried", "worry", "anxious", "afraid", "scared",
	"stressed", "upset", "angry", "poor", "broke", "concerned", "nervous", "hate", "lost",
	"struggling", "difficult", "worse", "worst", "fear", "lonely", "confused", "overwhelmed",
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Analyze classifies text by counting lexicon hits. It never fails.
func Analyze(text string) Result {
	var pos, neg int
	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.TrimFunc(token, isEdgePunct))
		if word == "" {
			continue
		}
		if _, ok := positiveWords[word]; ok {
			pos++
		}
		if _, ok := negativeWords[word]; ok {
			neg++
		}
	}

	switch {
	case pos > neg:
		return Result{Label: Positive, Confidence: polarConfidence}
	case neg > pos:
		return Result{Label: Negative, Confidence: polarConfidence}
	default:
		return Result{Label: Neutral, Confidence: neutralConfidence}
	}
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) && r != '\''
}
