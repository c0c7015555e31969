package accounts

import (
	"context"

	"github.com/carelink/portal/internal/session"
	"github.com/carelink/portal/internal/utils"
)

// SessionInfo adapts a session.Store to middleware.SessionFetcher.
type SessionInfo struct {
	Store session.Store
}

func (si SessionInfo) FindSessionByID(ctx context.Context, id string) (utils.SessionData, error) {
	sess, err := si.Store.Find(ctx, id)
	if err != nil {
		return utils.SessionData{}, err
	}
	return sess.Data(), nil
}
