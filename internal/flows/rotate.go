package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/refresh"
)

// RotateFailureKind classifies rotate flow failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureInvalidToken
	RotateFailureReuse
	RotateFailureRevoked
	RotateFailureExpired
	RotateFailureSign
	RotateFailureStore
)

// RotateResult carries either the next token pair or failure metadata.
type RotateResult struct {
	Failure RotateFailureKind
	Err     error

	UserID    string
	SessionID string
	FamilyID  string
	TokenID   string

	// FamilyRevoked reports that this call revoked the family.
	FamilyRevoked bool

	Permissions      []string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	NextTokenID      string
}

// RotateTokenStore is the subset of [refresh.Store] used by rotation.
type RotateTokenStore interface {
	GetMember(ctx context.Context, tokenID string) (*refresh.Member, error)
	GetFamily(ctx context.Context, familyID string) (*refresh.Family, error)
	RotateMember(ctx context.Context, familyID, oldTokenID string, next refresh.Member) (refresh.RotateStatus, error)
	RevokeFamily(ctx context.Context, familyID, reason string) (bool, error)
}

// RotateDeps captures rotate flow dependencies.
type RotateDeps struct {
	ParseRefresh     func(string) (*jwt.RefreshClaims, error)
	SignAccess       func(userID, sessionID, tokenID string, permissions []string) (string, time.Time, error)
	SignRefresh      func(userID, sessionID, familyID, tokenID string, expiresAt time.Time) (string, error)
	NewTokenID       func() string
	Now              func() time.Time
	RefreshTTL       time.Duration
	OperationTimeout time.Duration
	Store            RotateTokenStore
	// TouchSession records session activity after the swap. It returns false
	// only when the session has ended, which revokes the family. Store errors
	// must report true.
	TouchSession func(ctx context.Context, sessionID string) bool
	Warn         func(string, ...any)
}

// Revocation reasons recorded on families by the rotate flow.
const (
	RevokeReasonReuse   = "reuse_detected"
	RevokeReasonExpired = "family_expired"
	RevokeReasonEnded   = "session_ended"
)

// RunRotate exchanges a refresh token for the next pair in its family.
//
// The next tokens are signed before the compare-and-swap so the swap is the
// last step. A store error or timeout at any point fails the rotation; the
// caller must never assume the swap happened.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RotateResult{Failure: RotateFailureInvalidToken, Err: err}
	}

	res := RotateResult{
		UserID:    claims.Subject,
		SessionID: claims.SID,
		FamilyID:  claims.FamilyID,
		TokenID:   claims.ID,
	}

	opCtx := ctx
	if deps.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, deps.OperationTimeout)
		defer cancel()
	}

	member, err := deps.Store.GetMember(opCtx, claims.ID)
	if err != nil {
		if errors.Is(err, refresh.ErrMemberNotFound) {
			return res.fail(RotateFailureInvalidToken, err)
		}
		return res.fail(RotateFailureStore, err)
	}
	if member.FamilyID != claims.FamilyID || member.UserID != claims.Subject || member.SessionID != claims.SID {
		return res.fail(RotateFailureInvalidToken, errors.New("refresh token lineage mismatch"))
	}

	fam, err := deps.Store.GetFamily(opCtx, claims.FamilyID)
	if err != nil {
		if errors.Is(err, refresh.ErrFamilyNotFound) {
			return res.fail(RotateFailureRevoked, err)
		}
		return res.fail(RotateFailureStore, err)
	}
	if fam.Revoked {
		return res.fail(RotateFailureRevoked, errors.New("family revoked"))
	}

	now := deps.Now()
	nextID := deps.NewTokenID()
	refreshExp := now.Add(deps.RefreshTTL)
	if fam.ExpiresAt.Before(refreshExp) {
		refreshExp = fam.ExpiresAt
	}

	access, accessExp, err := deps.SignAccess(claims.Subject, claims.SID, nextID, fam.Permissions)
	if err != nil {
		return res.fail(RotateFailureSign, err)
	}
	next, err := deps.SignRefresh(claims.Subject, claims.SID, claims.FamilyID, nextID, refreshExp)
	if err != nil {
		return res.fail(RotateFailureSign, err)
	}

	status, err := deps.Store.RotateMember(opCtx, claims.FamilyID, claims.ID, refresh.Member{
		TokenID:   nextID,
		FamilyID:  claims.FamilyID,
		UserID:    claims.Subject,
		SessionID: claims.SID,
		IssuedAt:  now,
		ExpiresAt: refreshExp,
	})
	if err != nil {
		return res.fail(RotateFailureStore, err)
	}

	switch status {
	case refresh.RotateOK:
	case refresh.RotateConflict:
		res.FamilyRevoked = revokeFamily(opCtx, deps, claims.FamilyID, RevokeReasonReuse)
		return res.fail(RotateFailureReuse, errors.New("refresh token reuse"))
	case refresh.RotateRevoked, refresh.RotateNotFound:
		return res.fail(RotateFailureRevoked, errors.New("family revoked"))
	case refresh.RotateExpired:
		res.FamilyRevoked = revokeFamily(opCtx, deps, claims.FamilyID, RevokeReasonExpired)
		return res.fail(RotateFailureExpired, errors.New("family expired"))
	default:
		return res.fail(RotateFailureStore, errors.New("unknown rotate status"))
	}

	if deps.TouchSession != nil && !deps.TouchSession(ctx, claims.SID) {
		res.FamilyRevoked = revokeFamily(opCtx, deps, claims.FamilyID, RevokeReasonEnded)
		return res.fail(RotateFailureRevoked, errors.New("session ended"))
	}

	res.Permissions = fam.Permissions
	res.AccessToken = access
	res.AccessExpiresAt = accessExp
	res.RefreshToken = next
	res.RefreshExpiresAt = refreshExp
	res.NextTokenID = nextID
	return res
}

func (r RotateResult) fail(kind RotateFailureKind, err error) RotateResult {
	r.Failure = kind
	r.Err = err
	return r
}

func revokeFamily(ctx context.Context, deps RotateDeps, familyID, reason string) bool {
	revoked, err := deps.Store.RevokeFamily(ctx, familyID, reason)
	if err != nil && deps.Warn != nil {
		deps.Warn("goGuard: family revoke failed", "family_id", familyID, "reason", reason)
	}
	return revoked
}
