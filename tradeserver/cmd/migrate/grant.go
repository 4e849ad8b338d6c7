package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

type grant struct {
	userID   string
	ref      trade.StickerRef
	quantity int64
}

// parseGrants reads "user:sticker:rank:quantity" entries. rank is either the
// number 1-4 or its name.
func parseGrants(raw string) ([]grant, error) {
	var grants []grant
	for _, entry := range splitGrants(raw) {
		fields := strings.Split(entry, ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("grant %q: want user:sticker:rank:quantity", entry)
		}

		rank, err := parseRank(fields[2])
		if err != nil {
			return nil, fmt.Errorf("grant %q: %w", entry, err)
		}
		quantity, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil || quantity <= 0 {
			return nil, fmt.Errorf("grant %q: quantity must be a positive integer", entry)
		}
		if fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("grant %q: user and sticker are required", entry)
		}

		grants = append(grants, grant{
			userID:   fields[0],
			ref:      trade.StickerRef{StickerID: fields[1], Rank: rank},
			quantity: quantity,
		})
	}
	return grants, nil
}

func parseRank(raw string) (trade.Rank, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if r := trade.Rank(n); n > 0 && n < 256 && r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("unknown rank %s", raw)
	}
	for r := trade.RankBase; r <= trade.RankPrism; r++ {
		if strings.EqualFold(r.String(), raw) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rank %q", raw)
}
