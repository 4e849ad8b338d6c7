package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/stickerbook/trade-engine/backend/models"
	"github.com/stickerbook/trade-engine/backend/utils"
	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/tradeserver/config"
)

func RequestMatch(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sess, err := webApp.Trades.RequestMatch(c.UserContext(), userID)
		if err != nil {
			return sendTradeError(c, err)
		}
		if sess.Status == trade.StatusMatching {
			return utils.SendSuccess(c, sess, "Waiting for a trade partner")
		}
		return utils.SendSuccess(c, sess, "Trade partner found")
	}
}

func CancelMatch(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sess, err := webApp.Trades.CancelMatch(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, sess, "Matchmaking cancelled")
	}
}

func ListTrades(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sessions, err := webApp.Trades.ListSessions(c.UserContext(), userID, c.QueryBool("include_closed", false))
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, sessions, "")
	}
}

func TradeHistory(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)

		limit := webApp.HistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > config.MaxHistoryLimit {
				return utils.SendBadRequest(c, "Invalid limit", map[string]string{
					"limit": fmt.Sprintf("must be between 1 and %d", config.MaxHistoryLimit),
				})
			}
			limit = n
		}

		sessions, err := webApp.Trades.History(c.UserContext(), userID, limit)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, sessions, "")
	}
}

func GetTrade(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		view, err := webApp.Trades.GetSession(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, view, "")
	}
}

func AddItem(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)

		var req models.AddItemRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if errs := utils.ValidateAddItemRequest(&req); len(errs) > 0 {
			return utils.HandleValidationErrors(c, errs)
		}

		ref := trade.StickerRef{StickerID: req.StickerID, Rank: trade.Rank(req.Rank)}
		item, err := webApp.Trades.AddItem(c.UserContext(), c.Params("id"), userID, ref, req.Quantity)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendCreated(c, item, "Item staged")
	}
}

func RemoveItem(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		if err := webApp.Trades.RemoveItem(c.UserContext(), c.Params("itemId"), userID); err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendNoContent(c)
	}
}

func SetReady(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sess, err := webApp.Trades.SetReady(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return sendTradeError(c, err)
		}

		message := "Ready"
		switch {
		case sess.Status == trade.StatusCompleted:
			message = "Trade completed"
		case sess.FailureReason != "":
			message = "Settlement failed, trade reopened"
		}
		return utils.SendSuccess(c, sess, message)
	}
}

func Unready(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sess, err := webApp.Trades.Unready(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, sess, "Ready withdrawn")
	}
}

func CancelTrade(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)
		sess, err := webApp.Trades.Cancel(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendSuccess(c, sess, "Trade cancelled")
	}
}

func SendStamp(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.CurrentUserID(c)

		var req models.StampRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if errs := utils.ValidateStampRequest(&req); len(errs) > 0 {
			return utils.HandleValidationErrors(c, errs)
		}

		msg, err := webApp.Trades.SendStamp(c.UserContext(), c.Params("id"), userID, req.StampID)
		if err != nil {
			return sendTradeError(c, err)
		}
		return utils.SendCreated(c, msg, "Stamp sent")
	}
}

// sendTradeError maps engine errors onto HTTP statuses and stable codes.
func sendTradeError(c *fiber.Ctx, err error) error {
	var already *trade.AlreadyInSessionError
	var short *trade.InsufficientInventoryError

	switch {
	case errors.As(err, &already):
		return utils.SendError(c, http.StatusConflict, "ALREADY_IN_SESSION", err.Error(), map[string]string{
			"trade_id": already.TradeID,
			"status":   already.Status.String(),
		})
	case errors.As(err, &short):
		details := make(map[string]string, len(short.Shortfalls))
		for _, s := range short.Shortfalls {
			key := s.ItemID
			if key == "" {
				key = s.Sticker.String()
			}
			details[key] = fmt.Sprintf("needs %d, has %d", s.Needed, s.Available)
		}
		return utils.SendError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_INVENTORY", err.Error(), details)
	case errors.Is(err, trade.ErrInsufficientInventory):
		return utils.SendError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_INVENTORY", err.Error(), nil)
	case errors.Is(err, trade.ErrInvalidArgument):
		return utils.SendBadRequest(c, err.Error(), nil)
	case errors.Is(err, trade.ErrNotFound):
		return utils.SendNotFound(c, err.Error())
	case errors.Is(err, trade.ErrNotAParticipant):
		return utils.SendError(c, http.StatusForbidden, "NOT_A_PARTICIPANT", err.Error(), nil)
	case errors.Is(err, trade.ErrNotItemOwner):
		return utils.SendError(c, http.StatusForbidden, "NOT_ITEM_OWNER", err.Error(), nil)
	case errors.Is(err, trade.ErrAlreadyInSession):
		return utils.SendError(c, http.StatusConflict, "ALREADY_IN_SESSION", err.Error(), nil)
	case errors.Is(err, trade.ErrInvalidStateTransition):
		return utils.SendError(c, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error(), nil)
	case errors.Is(err, trade.ErrConcurrencyConflict):
		return utils.SendError(c, http.StatusConflict, "CONCURRENCY_CONFLICT", "Trade was modified concurrently, please retry", nil)
	case errors.Is(err, trade.ErrPreconditionFailed):
		return utils.SendError(c, http.StatusPreconditionFailed, "PRECONDITION_FAILED", err.Error(), nil)
	}

	slog.Error("Trade request failed",
		slog.String("type", "error"),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.String("error", err.Error()))
	return utils.SendInternalServerError(c, "Trade request failed")
}
