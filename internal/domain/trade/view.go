package trade

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stickerbook/trade-engine/tradeserver/config"
)

// GetSession returns the session as seen by viewerID, who must take part in it.
func (e *Engine) GetSession(ctx context.Context, tradeID, viewerID string) (*View, error) {
	if err := requireUser(viewerID); err != nil {
		return nil, err
	}

	reader := e.store.Reader()
	sess, err := reader.GetSession(ctx, tradeID, false)
	if err != nil {
		return nil, err
	}
	role, err := sess.RoleOf(viewerID)
	if err != nil {
		return nil, err
	}

	var (
		items    []Item
		messages []Message
		holdings []Holding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = reader.ListItems(gctx, tradeID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = reader.ListMessages(gctx, tradeID)
		return err
	})
	if partner := sess.Counterparty(viewerID); partner != "" && !sess.Status.IsTerminal() {
		g.Go(func() error {
			var err error
			holdings, err = reader.Holdings(gctx, partner)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &View{
		Session:         *sess,
		Role:            role.String(),
		MyItems:         make([]Item, 0, len(items)),
		PartnerItems:    make([]Item, 0, len(items)),
		Messages:        messages,
		PartnerHoldings: holdings,
	}
	for _, item := range items {
		if item.OwnerID == viewerID {
			view.MyItems = append(view.MyItems, item)
		} else {
			view.PartnerItems = append(view.PartnerItems, item)
		}
	}
	if view.Messages == nil {
		view.Messages = []Message{}
	}
	if view.PartnerHoldings == nil {
		view.PartnerHoldings = []Holding{}
	}
	return view, nil
}

// ListSessions returns the user's sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context, userID string, includeClosed bool) ([]Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return e.store.Reader().ListSessions(ctx, userID, includeClosed)
}

// History returns completed trades, most recently completed first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return e.store.Reader().ListCompleted(ctx, userID, limit)
}
