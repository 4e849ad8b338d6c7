package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stickerbook/trade-engine/backend/models"
	"github.com/stickerbook/trade-engine/tradeserver/config"
)

var (
	// ValidStickerIDRegex matches catalogue sticker ids such as "bear-01".
	ValidStickerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)

	ValidStampIDRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
)

// ValidateAddItemRequest validates a staging request before it reaches the
// engine.
func ValidateAddItemRequest(req *models.AddItemRequest) []models.ValidationError {
	var errors []models.ValidationError

	stickerID := strings.TrimSpace(req.StickerID)
	switch {
	case stickerID == "":
		errors = append(errors, models.ValidationError{Field: "sticker_id", Description: "Sticker ID is required"})
	case len(stickerID) > config.MaxStickerIDLength:
		errors = append(errors, models.ValidationError{
			Field:       "sticker_id",
			Description: fmt.Sprintf("Sticker ID must be at most %d characters", config.MaxStickerIDLength),
		})
	case !ValidStickerIDRegex.MatchString(stickerID):
		errors = append(errors, models.ValidationError{Field: "sticker_id", Description: "Sticker ID contains invalid characters"})
	}

	if req.Rank < 1 || req.Rank > 4 {
		errors = append(errors, models.ValidationError{Field: "rank", Description: "Rank must be between 1 and 4"})
	}

	if req.Quantity < 1 || req.Quantity > config.MaxItemQuantity {
		errors = append(errors, models.ValidationError{
			Field:       "quantity",
			Description: fmt.Sprintf("Quantity must be between 1 and %d", config.MaxItemQuantity),
		})
	}

	return errors
}

func ValidateStampRequest(req *models.StampRequest) []models.ValidationError {
	stampID := strings.TrimSpace(req.StampID)
	switch {
	case stampID == "":
		return []models.ValidationError{{Field: "stamp_id", Description: "Stamp ID is required"}}
	case len(stampID) > config.MaxStampIDLength:
		return []models.ValidationError{{
			Field:       "stamp_id",
			Description: fmt.Sprintf("Stamp ID must be at most %d characters", config.MaxStampIDLength),
		}}
	case !ValidStampIDRegex.MatchString(stampID):
		return []models.ValidationError{{Field: "stamp_id", Description: "Stamp ID contains invalid characters"}}
	}
	return nil
}
