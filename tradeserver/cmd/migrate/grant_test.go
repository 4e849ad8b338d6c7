package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

func TestParseGrants(t *testing.T) {
	grants, err := parseGrants(" alice:bear:2:5, bob:star:prism:1 ,")
	require.NoError(t, err)
	require.Len(t, grants, 2)

	assert.Equal(t, grant{userID: "alice", ref: trade.StickerRef{StickerID: "bear", Rank: trade.RankSilver}, quantity: 5}, grants[0])
	assert.Equal(t, trade.RankPrism, grants[1].ref.Rank)

	empty, err := parseGrants("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseGrants_Invalid(t *testing.T) {
	tests := []string{
		"alice:bear:2",
		"alice:bear:9:1",
		"alice:bear:shiny:1",
		"alice:bear:1:0",
		"alice:bear:1:lots",
		":bear:1:1",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := parseGrants(raw)
			assert.Error(t, err)
		})
	}
}
