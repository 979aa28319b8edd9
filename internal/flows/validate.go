package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureFamilyRevoked
	ValidateFailureStore
)

// refreshWindow is the fraction of an access token lifetime, counted from
// its expiry, inside which clients are told to refresh.
const refreshWindow = 0.2

// ValidateResult returns parsed claims or a classified failure.
type ValidateResult struct {
	Failure       ValidateFailureKind
	Err           error
	Access        *jwt.AccessClaims
	Refresh       *jwt.RefreshClaims
	ShouldRefresh bool
}

// ValidateDeps captures token validation dependencies.
type ValidateDeps struct {
	ParseAccess      func(string) (*jwt.AccessClaims, error)
	ParseRefresh     func(string) (*jwt.RefreshClaims, error)
	IsFamilyRevoked  func(ctx context.Context, familyID string) (bool, error)
	Now              func() time.Time
	OperationTimeout time.Duration
}

// RunValidateAccess verifies an access token without touching storage.
func RunValidateAccess(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
	return ValidateResult{
		Access:        claims,
		ShouldRefresh: shouldRefresh(claims, deps.Now()),
	}
}

// RunValidateRefresh verifies a refresh token. Only checkFamily consults the
// store, with a single revocation lookup.
func RunValidateRefresh(ctx context.Context, tokenStr string, checkFamily bool, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseRefresh(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
	if !checkFamily {
		return ValidateResult{Refresh: claims}
	}

	opCtx := ctx
	if deps.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, deps.OperationTimeout)
		defer cancel()
	}
	revoked, err := deps.IsFamilyRevoked(opCtx, claims.FamilyID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Refresh: claims}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureFamilyRevoked, Refresh: claims}
	}
	return ValidateResult{Refresh: claims}
}

func shouldRefresh(claims *jwt.AccessClaims, now time.Time) bool {
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}
	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if lifetime <= 0 {
		return true
	}
	remaining := claims.ExpiresAt.Sub(now)
	return float64(remaining) < float64(lifetime)*refreshWindow
}
