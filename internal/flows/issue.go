package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/refresh"
)

// IssueFailureKind classifies issue flow failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInput
	IssueFailureStore
	IssueFailureSign
)

// IssueResult carries a freshly issued pair and the family backing it.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error

	FamilyID         string
	TokenID          string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// IssueTokenStore is the subset of [refresh.Store] used by issuance.
type IssueTokenStore interface {
	CreateFamily(
		ctx context.Context,
		familyID, userID, sessionID, tokenID string,
		permissions []string,
		memberExpiry, familyExpiry time.Time,
	) (*refresh.Family, *refresh.Member, error)
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	NewFamilyID      func() (string, error)
	NewTokenID       func() string
	SignAccess       func(userID, sessionID, tokenID string, permissions []string) (string, time.Time, error)
	SignRefresh      func(userID, sessionID, familyID, tokenID string, expiresAt time.Time) (string, error)
	Now              func() time.Time
	RefreshTTL       time.Duration
	FamilyLifetime   time.Duration
	OperationTimeout time.Duration
	Store            IssueTokenStore
}

// RunIssue creates a new refresh family with one member and signs the
// matching access and refresh tokens.
func RunIssue(ctx context.Context, userID, sessionID string, permissions []string, deps IssueDeps) IssueResult {
	if userID == "" || sessionID == "" {
		return IssueResult{Failure: IssueFailureInput, Err: errors.New("user id and session id are required")}
	}

	familyID, err := deps.NewFamilyID()
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	tokenID := deps.NewTokenID()
	now := deps.Now()
	familyExp := now.Add(deps.FamilyLifetime)
	refreshExp := now.Add(deps.RefreshTTL)
	if familyExp.Before(refreshExp) {
		refreshExp = familyExp
	}

	access, accessExp, err := deps.SignAccess(userID, sessionID, tokenID, permissions)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	refreshToken, err := deps.SignRefresh(userID, sessionID, familyID, tokenID, refreshExp)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	opCtx := ctx
	if deps.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, deps.OperationTimeout)
		defer cancel()
	}
	if _, _, err := deps.Store.CreateFamily(opCtx, familyID, userID, sessionID, tokenID, permissions, refreshExp, familyExp); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	return IssueResult{
		FamilyID:         familyID,
		TokenID:          tokenID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}
}
