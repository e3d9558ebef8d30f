package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"analyzer/types"
)

func TestEstimateTokensEmpty(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokensEnglish(t *testing.T) {
	// 400 latin characters at 4 chars per token
	assert.Equal(t, 100, EstimateTokens(strings.Repeat("abcd", 100)))
}

func TestEstimateTokensHebrew(t *testing.T) {
	// 10 hebrew characters at 2.5 chars per token
	assert.Equal(t, 4, EstimateTokens(strings.Repeat("א", 10)))
}

func TestEstimateTokensMixed(t *testing.T) {
	// half hebrew: density is (0.5*2.5 + 0.5*4.0) = 3.25, ceil(8/3.25) = 3
	text := strings.Repeat("א", 4) + strings.Repeat("a", 4)
	assert.Equal(t, 3, EstimateTokens(text))
}

func TestEstimateTokensCountsRunesNotBytes(t *testing.T) {
	// a hebrew rune is 2 bytes in UTF-8 but must count once
	single := EstimateTokens("א")
	assert.Equal(t, 1, single)
}

func TestEstimateTurns(t *testing.T) {
	turns := []types.ConversationTurn{
		{Role: types.RoleUser, Text: strings.Repeat("abcd", 10)},
		{Role: types.RoleAssistant, Text: strings.Repeat("abcd", 5)},
	}
	assert.Equal(t, 15, EstimateTurns(turns))
}
