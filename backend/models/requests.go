package models

// AddItemRequest is the body of POST /api/trades/:id/items.
type AddItemRequest struct {
	StickerID string `json:"sticker_id"`
	Rank      int    `json:"rank"`
	Quantity  int64  `json:"quantity"`
}

// StampRequest is the body of POST /api/trades/:id/stamps.
type StampRequest struct {
	StampID string `json:"stamp_id"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}
