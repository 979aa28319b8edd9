package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

// InvalidateSessionStore is the subset of [session.Store] used by invalidation.
type InvalidateSessionStore interface {
	Deactivate(ctx context.Context, sessionID, reason string) (session.DeactivateResult, error)
	ListForUser(ctx context.Context, userID string) ([]*session.Session, error)
}

// FamilyRevoker revokes refresh families.
type FamilyRevoker interface {
	RevokeFamily(ctx context.Context, familyID, reason string) (bool, error)
}

// InvalidateDeps captures session invalidation dependencies.
type InvalidateDeps struct {
	Sessions         InvalidateSessionStore
	Families         FamilyRevoker
	OperationTimeout time.Duration
}

// InvalidateResult describes one session invalidation.
type InvalidateResult struct {
	SessionID string
	Found     bool
	// Changed is false when the session was already ended.
	Changed       bool
	FamilyID      string
	FamilyRevoked bool
	Err           error
}

// RunInvalidateSession ends a session and revokes its family. Ending an
// already ended session still revokes the family, so a family linked after
// the session ended cannot outlive it.
func RunInvalidateSession(ctx context.Context, sessionID, reason string, deps InvalidateDeps) InvalidateResult {
	opCtx := ctx
	if deps.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, deps.OperationTimeout)
		defer cancel()
	}

	res := InvalidateResult{SessionID: sessionID}
	out, err := deps.Sessions.Deactivate(opCtx, sessionID, reason)
	if err != nil {
		res.Err = err
		return res
	}
	res.Found = out.Found
	res.Changed = out.Changed
	res.FamilyID = out.FamilyID
	if out.FamilyID == "" {
		return res
	}

	revoked, err := deps.Families.RevokeFamily(opCtx, out.FamilyID, reason)
	if err != nil {
		res.Err = err
		return res
	}
	res.FamilyRevoked = revoked
	return res
}

// RunInvalidateAll ends every active session of a user except keepSessionID
// and returns the per-session outcomes. It stops at the first store failure.
func RunInvalidateAll(ctx context.Context, userID, keepSessionID, reason string, deps InvalidateDeps) ([]InvalidateResult, error) {
	sessions, err := deps.Sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]InvalidateResult, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.Active || sess.SessionID == keepSessionID {
			continue
		}
		res := RunInvalidateSession(ctx, sess.SessionID, reason, deps)
		if res.Err != nil {
			return out, res.Err
		}
		out = append(out, res)
	}
	return out, nil
}
