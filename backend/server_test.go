package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stickerbook/trade-engine/backend/handlers"
	"github.com/stickerbook/trade-engine/backend/middleware"
	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/internal/domain/trade/memory"
	"github.com/stickerbook/trade-engine/internal/domain/trade/mock"
	"github.com/stickerbook/trade-engine/internal/gateways/realtime"
)

type tokens map[string]string

func (t tokens) Verify(raw string) (string, error) {
	if userID, ok := t[raw]; ok {
		return userID, nil
	}
	return "", errors.New("unknown token")
}

var testTokens = tokens{"tok-alice": "alice", "tok-bob": "bob"}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newMockApp(t *testing.T) (*fiber.App, *mock.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mock.NewMockService(ctrl)
	app := NewApp(&handlers.WebApp{Trades: svc, HistoryLimit: 20}, Options{Verifier: testTokens})
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, path, token, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	}
	return resp.StatusCode, env
}

func TestRoutes_RequireAuth(t *testing.T) {
	app, _ := newMockApp(t)

	for _, token := range []string{"", "tok-mallory"} {
		status, env := do(t, app, http.MethodPost, "/api/trades/match", token, "")
		assert.Equal(t, http.StatusUnauthorized, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	}
}

func TestRoutes_PassUserAndParams(t *testing.T) {
	app, svc := newMockApp(t)
	sess := &trade.Session{ID: "t-1", InitiatorID: "alice", PartnerID: "bob", Status: trade.StatusNegotiating, Version: 2}

	svc.EXPECT().RequestMatch(gomock.Any(), "alice").Return(sess, nil)
	svc.EXPECT().CancelMatch(gomock.Any(), "t-1", "alice").Return(sess, nil)
	svc.EXPECT().ListSessions(gomock.Any(), "alice", true).Return([]trade.Session{*sess}, nil)
	svc.EXPECT().History(gomock.Any(), "bob", 5).Return(nil, nil)
	svc.EXPECT().History(gomock.Any(), "bob", 20).Return(nil, nil)
	svc.EXPECT().GetSession(gomock.Any(), "t-1", "bob").Return(&trade.View{Session: *sess, Role: "partner"}, nil)
	svc.EXPECT().AddItem(gomock.Any(), "t-1", "alice", trade.StickerRef{StickerID: "bear", Rank: trade.RankGold}, int64(2)).
		Return(&trade.Item{ID: "i-1"}, nil)
	svc.EXPECT().RemoveItem(gomock.Any(), "i-1", "alice").Return(nil)
	svc.EXPECT().SetReady(gomock.Any(), "t-1", "bob").Return(sess, nil)
	svc.EXPECT().Unready(gomock.Any(), "t-1", "alice").Return(sess, nil)
	svc.EXPECT().Cancel(gomock.Any(), "t-1", "bob").Return(sess, nil)
	svc.EXPECT().SendStamp(gomock.Any(), "t-1", "bob", "wave").Return(&trade.Message{ID: "m-1"}, nil)

	tests := []struct {
		method, path, token, body string
		want                      int
	}{
		{http.MethodPost, "/api/trades/match", "tok-alice", "", http.StatusOK},
		{http.MethodDelete, "/api/trades/t-1/match", "tok-alice", "", http.StatusOK},
		{http.MethodGet, "/api/trades?include_closed=true", "tok-alice", "", http.StatusOK},
		{http.MethodGet, "/api/trades/history?limit=5", "tok-bob", "", http.StatusOK},
		{http.MethodGet, "/api/trades/history", "tok-bob", "", http.StatusOK},
		{http.MethodGet, "/api/trades/t-1", "tok-bob", "", http.StatusOK},
		{http.MethodPost, "/api/trades/t-1/items", "tok-alice", `{"sticker_id":"bear","rank":3,"quantity":2}`, http.StatusCreated},
		{http.MethodDelete, "/api/trades/items/i-1", "tok-alice", "", http.StatusNoContent},
		{http.MethodPost, "/api/trades/t-1/ready", "tok-bob", "", http.StatusOK},
		{http.MethodDelete, "/api/trades/t-1/ready", "tok-alice", "", http.StatusOK},
		{http.MethodPost, "/api/trades/t-1/cancel", "tok-bob", "", http.StatusOK},
		{http.MethodPost, "/api/trades/t-1/stamps", "tok-bob", `{"stamp_id":"wave"}`, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, env := do(t, app, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, status)
			if status != http.StatusNoContent {
				assert.True(t, env.Success)
			}
		})
	}
}

func TestRoutes_ValidateBodies(t *testing.T) {
	app, _ := newMockApp(t)

	tests := []struct {
		name, path, body string
		want             int
		field            string
	}{
		{"malformed json", "/api/trades/t-1/items", `{"sticker_id":`, http.StatusBadRequest, ""},
		{"missing sticker", "/api/trades/t-1/items", `{"rank":1,"quantity":1}`, http.StatusUnprocessableEntity, "sticker_id"},
		{"bad rank", "/api/trades/t-1/items", `{"sticker_id":"bear","rank":7,"quantity":1}`, http.StatusUnprocessableEntity, "rank"},
		{"zero quantity", "/api/trades/t-1/items", `{"sticker_id":"bear","rank":1,"quantity":0}`, http.StatusUnprocessableEntity, "quantity"},
		{"empty stamp", "/api/trades/t-1/stamps", `{"stamp_id":"  "}`, http.StatusUnprocessableEntity, "stamp_id"},
		{"bad stamp", "/api/trades/t-1/stamps", `{"stamp_id":"<script>"}`, http.StatusUnprocessableEntity, "stamp_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPost, tt.path, "tok-alice", tt.body)
			assert.Equal(t, tt.want, status)
			require.NotNil(t, env.Error)
			if tt.field != "" {
				assert.Contains(t, env.Error.Details, tt.field)
			}
		})
	}

	status, _ := do(t, app, http.MethodGet, "/api/trades/history?limit=1000", "tok-alice", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoutes_MapTradeErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"already in session", &trade.AlreadyInSessionError{TradeID: "t-0", Status: trade.StatusPartnerReady}, http.StatusConflict, "ALREADY_IN_SESSION"},
		{"transition", &trade.TransitionError{From: trade.StatusCompleted}, http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"not participant", trade.ErrNotAParticipant, http.StatusForbidden, "NOT_A_PARTICIPANT"},
		{"not owner", trade.ErrNotItemOwner, http.StatusForbidden, "NOT_ITEM_OWNER"},
		{"not found", trade.NotFound("trade_session", "t-9"), http.StatusNotFound, "NOT_FOUND"},
		{"invalid", fmt.Errorf("%w: rank", trade.ErrInvalidArgument), http.StatusBadRequest, "BAD_REQUEST"},
		{"precondition", trade.ErrPreconditionFailed, http.StatusPreconditionFailed, "PRECONDITION_FAILED"},
		{"conflict", trade.ErrConcurrencyConflict, http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{"shortfall", &trade.InsufficientInventoryError{Shortfalls: []trade.Shortfall{{ItemID: "i-1", Needed: 3, Available: 1}}}, http.StatusUnprocessableEntity, "INSUFFICIENT_INVENTORY"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, svc := newMockApp(t)
			svc.EXPECT().SetReady(gomock.Any(), "t-1", "alice").Return(nil, tt.err)

			status, env := do(t, app, http.MethodPost, "/api/trades/t-1/ready", "tok-alice", "")
			assert.Equal(t, tt.wantCode, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestRoutes_ErrorDetails(t *testing.T) {
	app, svc := newMockApp(t)
	svc.EXPECT().RequestMatch(gomock.Any(), "alice").
		Return(nil, &trade.AlreadyInSessionError{TradeID: "t-0", Status: trade.StatusPartnerReady})
	svc.EXPECT().SetReady(gomock.Any(), "t-1", "alice").
		Return(nil, &trade.InsufficientInventoryError{Shortfalls: []trade.Shortfall{
			{ItemID: "i-1", Needed: 3, Available: 1},
			{Sticker: trade.StickerRef{StickerID: "bear", Rank: trade.RankBase}, Needed: 2, Available: 0},
		}})

	_, env := do(t, app, http.MethodPost, "/api/trades/match", "tok-alice", "")
	require.NotNil(t, env.Error)
	assert.Equal(t, map[string]string{"trade_id": "t-0", "status": "partner_ready"}, env.Error.Details)

	_, env = do(t, app, http.MethodPost, "/api/trades/t-1/ready", "tok-alice", "")
	require.NotNil(t, env.Error)
	assert.Equal(t, "needs 3, has 1", env.Error.Details["i-1"])
	assert.Equal(t, "needs 2, has 0", env.Error.Details["bear@base"])
}

func TestRoutes_RateLimitPerUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock.NewMockService(ctrl)
	app := NewApp(&handlers.WebApp{Trades: svc}, Options{
		Verifier: testTokens,
		Limiter:  middleware.NewRateLimiter(2, time.Minute),
	})
	svc.EXPECT().Cancel(gomock.Any(), "t-1", gomock.Any()).Return(&trade.Session{ID: "t-1", Status: trade.StatusCancelled}, nil).Times(3)

	for i := 0; i < 2; i++ {
		status, _ := do(t, app, http.MethodPost, "/api/trades/t-1/cancel", "tok-alice", "")
		assert.Equal(t, http.StatusOK, status)
	}
	status, env := do(t, app, http.MethodPost, "/api/trades/t-1/cancel", "tok-alice", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)

	status, _ = do(t, app, http.MethodPost, "/api/trades/t-1/cancel", "tok-bob", "")
	assert.Equal(t, http.StatusOK, status, "limits are per user")
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	hub := realtime.NewHub()

	app := NewApp(&handlers.WebApp{DB: failingPinger{}, Hub: hub, Version: "test"}, Options{Verifier: testTokens})
	status, env := do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"realtime"`)

	app = NewApp(&handlers.WebApp{DB: failingPinger{err: errors.New("refused")}}, Options{Verifier: testTokens})
	status, env = do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(env.Data), "refused")
}

func TestUnknownRoute(t *testing.T) {
	app, _ := newMockApp(t)
	status, env := do(t, app, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

// TestTradeFlow drives a full trade through HTTP against the real engine.
func TestTradeFlow(t *testing.T) {
	store := memory.New()
	bear := trade.StickerRef{StickerID: "bear", Rank: trade.RankBase}
	star := trade.StickerRef{StickerID: "star", Rank: trade.RankGold}
	store.Grant("alice", bear, 2)
	store.Grant("bob", star, 1)

	engine, err := trade.NewEngine(store, trade.NopNotifier{}, store, trade.Config{})
	require.NoError(t, err)
	app := NewApp(&handlers.WebApp{Trades: engine, HistoryLimit: 20}, Options{Verifier: testTokens})

	status, env := do(t, app, http.MethodPost, "/api/trades/match", "tok-alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Waiting for a trade partner", env.Message)

	status, env = do(t, app, http.MethodPost, "/api/trades/match", "tok-bob", "")
	require.Equal(t, http.StatusOK, status)
	var sess trade.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	require.Equal(t, trade.StatusNegotiating, sess.Status)

	itemPath := "/api/trades/" + sess.ID + "/items"
	status, _ = do(t, app, http.MethodPost, itemPath, "tok-alice", `{"sticker_id":"bear","rank":1,"quantity":2}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = do(t, app, http.MethodPost, itemPath, "tok-bob", `{"sticker_id":"star","rank":3,"quantity":1}`)
	require.Equal(t, http.StatusCreated, status)

	status, _ = do(t, app, http.MethodPost, "/api/trades/"+sess.ID+"/ready", "tok-alice", "")
	require.Equal(t, http.StatusOK, status)
	status, env = do(t, app, http.MethodPost, "/api/trades/"+sess.ID+"/ready", "tok-bob", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Trade completed", env.Message)

	assert.Equal(t, int64(2), store.BalanceOf("bob", bear))
	assert.Equal(t, int64(1), store.BalanceOf("alice", star))
	assert.Zero(t, store.BalanceOf("alice", bear))

	status, env = do(t, app, http.MethodGet, "/api/trades/history", "tok-alice", "")
	require.Equal(t, http.StatusOK, status)
	var history []trade.Session
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, sess.ID, history[0].ID)
}

func TestTradeFlow_ItemsSurviveLaterRequests(t *testing.T) {
	store := memory.New()
	bear := trade.StickerRef{StickerID: "bear", Rank: trade.RankBase}
	store.Grant("alice", bear, 2)

	engine, err := trade.NewEngine(store, trade.NopNotifier{}, store, trade.Config{})
	require.NoError(t, err)
	app := NewApp(&handlers.WebApp{Trades: engine, HistoryLimit: 20}, Options{Verifier: testTokens})

	_, _ = do(t, app, http.MethodPost, "/api/trades/match", "tok-alice", "")
	status, env := do(t, app, http.MethodPost, "/api/trades/match", "tok-bob", "")
	require.Equal(t, http.StatusOK, status)
	var sess trade.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))

	status, _ = do(t, app, http.MethodPost, "/api/trades/"+sess.ID+"/items", "tok-alice", `{"sticker_id":"bear","rank":1,"quantity":2}`)
	require.Equal(t, http.StatusCreated, status)

	// Same length path, different id, reusing the request buffers.
	status, _ = do(t, app, http.MethodGet, "/api/trades/"+strings.Repeat("z", len(sess.ID)), "tok-bob", "")
	require.Equal(t, http.StatusNotFound, status)
	_, _ = do(t, app, http.MethodPost, "/api/trades/"+strings.Repeat("y", len(sess.ID))+"/stamps", "tok-bob", `{"stamp_id":"wave"}`)

	view, err := engine.GetSession(context.Background(), sess.ID, "alice")
	require.NoError(t, err)
	require.Len(t, view.MyItems, 1)
	assert.Equal(t, sess.ID, view.MyItems[0].TradeID)

	// The staged pair still counts against alice's balance.
	status, env = do(t, app, http.MethodPost, "/api/trades/"+sess.ID+"/items", "tok-alice", `{"sticker_id":"bear","rank":1,"quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_INVENTORY", env.Error.Code)
}
