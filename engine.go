package goGuard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/csrf"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/refresh"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
)

// Engine defines a public type used by goGuard APIs.
//
// An Engine is built once by [Builder.Build] and is safe for concurrent use.
// Token, session, device, CSRF and rate limit state lives in the configured
// stores; the engine itself holds no per-user state.
//
//	Docs: docs/engine.md
type Engine struct {
	config Config
	now    func() time.Time
	redis  redis.UniversalClient

	jwtManager   *jwt.Manager
	refreshStore *refresh.Store
	sessionStore *session.Store

	devices       *device.Manager
	deviceBackend string

	csrf          *csrf.Protector
	limiter       rate.Limiter
	memoryLimiter *rate.MemoryBucket

	flows   flows.Service
	audit   *audit.Dispatcher
	metrics *Metrics
	warn    func(string, ...any)
}

// Close stops the event dispatcher after delivering queued events. The
// engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many security events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and latency
// histograms.
//
//	Performance: allocates one map per call; safe to call from a scrape loop.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Ping checks that the Redis backend answers.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.redis == nil {
		return ErrEngineNotReady
	}
	opCtx, cancel := e.opContext(ctx)
	defer cancel()
	if err := e.redis.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) warnf(msg string, kv ...any) {
	if e == nil || e.warn == nil {
		return
	}
	e.warn(msg, kv...)
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.OperationTimeout > 0 {
		return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) storeUnavailable(ctx context.Context, op string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.emitEvent(ctx, eventStoreUnavailable, SeverityHigh, false, eventFields{
		reason: op,
	})
	e.warnf("goGuard: store unavailable", "op", op, "error", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Issue creates a new refresh family bound to an existing active session of
// userID and returns the first token pair. Any family previously bound to
// the session is revoked. An empty permissions slice falls back to the
// session's permissions.
//
// Issue returns [ErrSessionNotFound], [ErrSessionNotOwned],
// [ErrSessionInactive] or [ErrStoreUnavailable].
//
//	Docs: docs/tokens.md
func (e *Engine) Issue(ctx context.Context, userID, sessionID string, permissions []string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" || sessionID == "" {
		return nil, ErrSessionNotFound
	}

	opCtx, cancel := e.opContext(ctx)
	sess, err := e.sessionStore.Get(opCtx, sessionID)
	cancel()
	if err != nil {
		e.metricInc(MetricIssueFailure)
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, e.storeUnavailable(ctx, "issue", err)
	}
	if sess.UserID != userID {
		e.metricInc(MetricIssueFailure)
		return nil, ErrSessionNotOwned
	}
	if !sess.Active || sess.Expired(e.now(), e.config.Session.IdleTimeout) {
		e.metricInc(MetricIssueFailure)
		return nil, ErrSessionInactive
	}
	if len(permissions) == 0 {
		permissions = sess.Permissions
	}

	res := e.flows.Issue(ctx, userID, sessionID, permissions)
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureInput:
		e.metricInc(MetricIssueFailure)
		return nil, ErrSessionNotFound
	case flows.IssueFailureStore:
		e.metricInc(MetricIssueFailure)
		return nil, e.storeUnavailable(ctx, "issue", res.Err)
	default:
		e.metricInc(MetricIssueFailure)
		return nil, fmt.Errorf("issue tokens: %w", res.Err)
	}

	opCtx, cancel = e.opContext(ctx)
	defer cancel()

	status, err := e.sessionStore.LinkFamily(opCtx, sessionID, res.FamilyID)
	if err != nil || status != session.LinkOK {
		if _, rerr := e.refreshStore.RevokeFamily(opCtx, res.FamilyID, flows.RevokeReasonEnded); rerr != nil {
			e.warnf("goGuard: orphan family revoke failed", "family_id", res.FamilyID)
		}
		e.metricInc(MetricIssueFailure)
		switch {
		case err != nil:
			return nil, e.storeUnavailable(ctx, "issue", err)
		case status == session.LinkNotFound:
			return nil, ErrSessionNotFound
		default:
			return nil, ErrSessionInactive
		}
	}

	if sess.FamilyID != "" && sess.FamilyID != res.FamilyID {
		if _, err := e.refreshStore.RevokeFamily(opCtx, sess.FamilyID, "reissued"); err != nil {
			e.warnf("goGuard: previous family revoke failed", "family_id", sess.FamilyID)
		}
	}

	e.metricInc(MetricIssueSuccess)
	e.emitEvent(ctx, eventTokenIssued, SeverityLow, true, eventFields{
		userID:    userID,
		sessionID: sessionID,
		familyID:  res.FamilyID,
	})

	return e.tokenPair(sessionID, res.FamilyID, res.AccessToken, res.AccessExpiresAt, res.RefreshToken, res.RefreshExpiresAt), nil
}

func (e *Engine) tokenPair(sessionID, familyID, access string, accessExp time.Time, refreshTok string, refreshExp time.Time) *TokenPair {
	now := e.now()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshTok,
		ExpiresIn:        int64(accessExp.Sub(now) / time.Second),
		RefreshExpiresIn: int64(refreshExp.Sub(now) / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		FamilyID:         familyID,
		SessionID:        sessionID,
	}
}

// Rotate consumes a refresh token and returns the next pair in its family.
// Each refresh token is accepted at most once: presenting a consumed token
// revokes the whole family and returns [ErrFamilyRevoked].
//
// Rotate returns [ErrTokenInvalid], [ErrFamilyRevoked], [ErrFamilyExpired]
// or [ErrRotationFailed]. A store failure is reported as ErrRotationFailed
// wrapping [ErrStoreUnavailable]. The rotation may still have been applied
// server side when the operation timeout fired, so the client must not
// retry with the same token: a retry can be treated as reuse. It should
// re-authenticate instead.
//
//	Docs: docs/tokens.md
//	Performance: 4 Redis round trips on success (2 HGETALL, 2 EVALSHA).
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeSince(MetricRotateLatency, start)

	res := e.flows.Rotate(ctx, refreshToken)
	fields := eventFields{
		userID:    res.UserID,
		sessionID: res.SessionID,
		familyID:  res.FamilyID,
	}

	switch res.Failure {
	case flows.RotateFailureNone:
	case flows.RotateFailureInvalidToken:
		e.metricInc(MetricRefreshFailure)
		fields.reason = errorReason(ErrTokenInvalid)
		e.emitEvent(ctx, eventRefreshInvalid, SeverityLow, false, fields)
		e.recordFailure(ctx, FailureRefresh, "", res.UserID)
		return nil, ErrTokenInvalid
	case flows.RotateFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		if res.FamilyRevoked {
			e.metricInc(MetricFamilyRevoked)
		}
		fields.reason = errorReason(ErrRotationConflict)
		fields.metadata = func() map[string]string {
			return map[string]string{"token_id": res.TokenID}
		}
		e.emitEvent(ctx, eventRefreshReuseDetected, SeverityHigh, false, fields)
		e.recordFailure(ctx, FailureRefresh, "", res.UserID)
		return nil, ErrFamilyRevoked
	case flows.RotateFailureRevoked:
		e.rotatedRevokedFamily(ctx, res, fields)
		return nil, ErrFamilyRevoked
	case flows.RotateFailureExpired:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricFamilyExpired)
		fields.reason = errorReason(ErrFamilyExpired)
		e.emitEvent(ctx, eventFamilyExpired, SeverityLow, false, fields)
		return nil, ErrFamilyExpired
	case flows.RotateFailureStore:
		e.metricInc(MetricRefreshFailure)
		err := e.storeUnavailable(ctx, "rotate", res.Err)
		return nil, fmt.Errorf("%w: %w", ErrRotationFailed, err)
	default:
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, res.Err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitEvent(ctx, eventTokenRefreshed, SeverityLow, true, fields)

	return e.tokenPair(res.SessionID, res.FamilyID, res.AccessToken, res.AccessExpiresAt, res.RefreshToken, res.RefreshExpiresAt), nil
}

// rotatedRevokedFamily records a refresh against a family that is no longer
// live. Families this call revoked (the session had ended) log
// family_revoked; a family revoked earlier logs refresh_on_revoked_family,
// which is how replays after reuse detection show up.
func (e *Engine) rotatedRevokedFamily(ctx context.Context, res flows.RotateResult, fields eventFields) {
	e.metricInc(MetricRefreshFailure)
	if res.FamilyRevoked {
		e.metricInc(MetricFamilyRevoked)
		fields.reason = flows.RevokeReasonEnded
		e.emitEvent(ctx, eventFamilyRevoked, SeverityMedium, false, fields)
	} else {
		fields.reason = errorReason(ErrFamilyRevoked)
		fields.metadata = func() map[string]string {
			return map[string]string{"token_id": res.TokenID}
		}
		e.emitEvent(ctx, eventRefreshOnRevokedFamily, SeverityMedium, false, fields)
	}
	e.recordFailure(ctx, FailureRefresh, "", res.UserID)
}

// touchForRotation reports whether the session behind a rotated family is
// still live and refreshes its activity. Sessions found past their lifetime
// or idle window are ended here. Store failures keep the rotation.
func (e *Engine) touchForRotation(ctx context.Context, sessionID string) bool {
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	status, err := e.sessionStore.Touch(opCtx, sessionID, clientIPFromContext(ctx), e.config.Session.IdleTimeout)
	if err != nil {
		e.warnf("goGuard: session touch failed", "session_id", sessionID, "error", err)
		return true
	}

	switch status {
	case session.TouchOK:
		return true
	case session.TouchExpired:
		e.expireSession(ctx, sessionID)
		return false
	default:
		return false
	}
}

// VerifyAccess checks an access token's signature, expiry, issuer, audience
// and type. It does not consult any store.
//
//	Performance: no I/O.
func (e *Engine) VerifyAccess(token string) (*AccessResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeSince(MetricValidateLatency, start)

	res := e.flows.ValidateAccess(token)
	if res.Failure != flows.ValidateFailureNone {
		return nil, ErrTokenInvalid
	}
	return accessResult(res), nil
}

func accessResult(res flows.ValidateResult) *AccessResult {
	out := &AccessResult{
		UserID:        res.Access.Subject,
		SessionID:     res.Access.SID,
		TokenID:       res.Access.ID,
		Permissions:   res.Access.Permissions,
		ShouldRefresh: res.ShouldRefresh,
	}
	if res.Access.ExpiresAt != nil {
		out.ExpiresAt = res.Access.ExpiresAt.Time
	}
	return out
}

// Authenticate verifies an access token under routeMode. [ModeStrict] also
// requires the token's session to be active and not idle; [ModeInherit]
// uses the engine's configured mode.
//
// Authenticate returns [ErrTokenInvalid], [ErrSessionInactive] or
// [ErrStoreUnavailable].
//
//	Docs: docs/middleware.md
func (e *Engine) Authenticate(ctx context.Context, token string, routeMode RouteMode) (*AccessResult, error) {
	result, err := e.VerifyAccess(token)
	if err != nil {
		return nil, err
	}

	mode := routeMode
	if mode == ModeInherit {
		mode = e.config.ValidationMode
	}
	if mode != ModeStrict {
		return result, nil
	}

	check, err := e.ValidateSession(ctx, result.SessionID, 0)
	if err != nil {
		return nil, err
	}
	if !check.Valid || check.Session.UserID != result.UserID {
		return nil, ErrSessionInactive
	}
	return result, nil
}

// ValidateAccessToken is the non-failing form of [Engine.VerifyAccess] used
// by introspection endpoints.
func (e *Engine) ValidateAccessToken(token string) ValidationResult {
	result, err := e.VerifyAccess(token)
	if err != nil {
		return ValidationResult{Reason: errorReason(err), Err: err}
	}
	return ValidationResult{
		Valid:         true,
		UserID:        result.UserID,
		SessionID:     result.SessionID,
		TokenID:       result.TokenID,
		Permissions:   result.Permissions,
		ExpiresAt:     result.ExpiresAt,
		ShouldRefresh: result.ShouldRefresh,
	}
}

// ValidateRefreshToken checks a refresh token without consuming it. With
// CheckFamily set the family's revocation state is read from the store and a
// store failure is reported as invalid.
func (e *Engine) ValidateRefreshToken(ctx context.Context, token string, opts RefreshValidationOptions) ValidationResult {
	if err := e.ready(); err != nil {
		return ValidationResult{Reason: "not_ready", Err: err}
	}

	res := e.flows.ValidateRefresh(ctx, token, opts.CheckFamily)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureFamilyRevoked:
		return ValidationResult{Reason: errorReason(ErrFamilyRevoked), Err: ErrFamilyRevoked}
	case flows.ValidateFailureStore:
		err := e.storeUnavailable(ctx, "validate_refresh", res.Err)
		return ValidationResult{Reason: errorReason(err), Err: err}
	default:
		return ValidationResult{Reason: errorReason(ErrTokenInvalid), Err: ErrTokenInvalid}
	}

	out := ValidationResult{
		Valid:     true,
		UserID:    res.Refresh.Subject,
		SessionID: res.Refresh.SID,
		FamilyID:  res.Refresh.FamilyID,
		TokenID:   res.Refresh.ID,
	}
	if res.Refresh.ExpiresAt != nil {
		out.ExpiresAt = res.Refresh.ExpiresAt.Time
	}
	return out
}

// RevokeRefreshToken revokes the family of a valid refresh token. The
// session it belongs to stays active. Revoking an already revoked family is
// not an error.
func (e *Engine) RevokeRefreshToken(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := e.flows.ValidateRefresh(ctx, token, false)
	if res.Failure != flows.ValidateFailureNone {
		return ErrTokenInvalid
	}

	return e.RevokeFamily(ctx, res.Refresh.FamilyID, ReasonUserRevoked)
}

// RevokeFamily marks a refresh family revoked so no member of it can rotate.
func (e *Engine) RevokeFamily(ctx context.Context, familyID, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	fam, err := e.refreshStore.GetFamily(opCtx, familyID)
	if err != nil {
		if errors.Is(err, refresh.ErrFamilyNotFound) {
			return nil
		}
		return e.storeUnavailable(ctx, "revoke_family", err)
	}

	revoked, err := e.refreshStore.RevokeFamily(opCtx, familyID, reason)
	if err != nil {
		return e.storeUnavailable(ctx, "revoke_family", err)
	}
	if revoked {
		e.metricInc(MetricFamilyRevoked)
		e.emitEvent(ctx, eventFamilyRevoked, SeverityMedium, true, eventFields{
			userID:    fam.UserID,
			sessionID: fam.SessionID,
			familyID:  familyID,
			reason:    reason,
		})
	}
	return nil
}
