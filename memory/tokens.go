package memory

import (
	"math"

	"analyzer/types"
)

// Characters per model token, by script. Hebrew tokenizes denser than
// Latin text.
const (
	hebrewCharsPerToken = 2.5
	latinCharsPerToken  = 4.0
)

// EstimateTokens approximates the token count of text by blending per-script
// densities according to the fraction of Hebrew-block characters.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	total := 0
	hebrew := 0
	for _, c := range text {
		total++
		if c >= 0x0590 && c <= 0x05FF {
			hebrew++
		}
	}

	hebrewRatio := float64(hebrew) / float64(total)
	charsPerToken := hebrewRatio*hebrewCharsPerToken + (1-hebrewRatio)*latinCharsPerToken

	return int(math.Ceil(float64(total) / charsPerToken))
}

// EstimateTurns sums the token estimates of a turn sequence.
func EstimateTurns(turns []types.ConversationTurn) int {
	total := 0
	for _, t := range turns {
		total += EstimateTokens(t.Text)
	}
	return total
}
