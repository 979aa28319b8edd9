package goGuard

import (
	"context"
	"errors"
	"sort"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/session"
)

// CreateSession starts a session for userID on the device described by rc.
// Empty permissions fall back to Session.DefaultPermissions. When the user
// already holds Session.MaxSessionsPerUser active sessions the oldest are
// ended with [ReasonMaxSessionsExceeded].
//
// Device registration is best-effort: a device store failure leaves the
// session without a DeviceID.
//
//	Docs: docs/sessions.md
func (e *Engine) CreateSession(ctx context.Context, userID string, rc RequestContext, permissions []string) (*session.Session, error) {
	sess, _, _, err := e.createSession(ctx, userID, rc, permissions)
	return sess, err
}

// CreateSessionWithDevice is [Engine.CreateSession] that also returns the
// registered device, which is nil when registration failed.
func (e *Engine) CreateSessionWithDevice(ctx context.Context, userID string, rc RequestContext, permissions []string) (*session.Session, *device.Device, error) {
	sess, dev, _, err := e.createSession(ctx, userID, rc, permissions)
	return sess, dev, err
}

func (e *Engine) createSession(ctx context.Context, userID string, rc RequestContext, permissions []string) (*session.Session, *device.Device, bool, error) {
	if err := e.ready(); err != nil {
		return nil, nil, false, err
	}
	if userID == "" {
		return nil, nil, false, ErrIdentityInvalid
	}

	dev, created, err := e.registerDevice(ctx, userID, rc)
	if err != nil {
		e.warnf("goGuard: device registration skipped", "user_id", userID, "error", err)
		dev, created = nil, false
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, nil, false, err
	}
	if len(permissions) == 0 {
		permissions = append([]string(nil), e.config.Session.DefaultPermissions...)
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	version, err := e.sessionStore.NextVersion(opCtx, userID)
	if err != nil {
		return nil, nil, false, e.storeUnavailable(ctx, "create_session", err)
	}

	now := e.now()
	sess := &session.Session{
		SessionID:      sid.String(),
		UserID:         userID,
		Permissions:    permissions,
		Version:        version,
		IP:             rc.IP,
		UserAgent:      rc.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(e.config.Session.Lifetime),
		Active:         true,
	}
	if dev != nil {
		sess.DeviceID = dev.DeviceID
	}
	if err := e.sessionStore.Save(opCtx, sess); err != nil {
		return nil, nil, false, e.storeUnavailable(ctx, "create_session", err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitEvent(ctx, eventSessionCreated, SeverityLow, true, eventFields{
		userID:    userID,
		sessionID: sess.SessionID,
		rc:        &rc,
	})

	if err := e.enforceSessionCap(ctx, userID, sess.SessionID); err != nil {
		e.warnf("goGuard: session cap enforcement failed", "user_id", userID, "error", err)
	}

	return sess, dev, created, nil
}

// enforceSessionCap ends the oldest active sessions beyond the per-user cap.
// keep is never evicted.
func (e *Engine) enforceSessionCap(ctx context.Context, userID, keep string) error {
	limit := e.config.Session.MaxSessionsPerUser
	if limit <= 0 {
		return nil
	}

	sessions, err := e.activeSessions(ctx, userID)
	if err != nil {
		return err
	}
	excess := len(sessions) - limit
	for _, sess := range sessions {
		if excess <= 0 {
			break
		}
		if sess.SessionID == keep {
			continue
		}
		res := e.flows.InvalidateSession(ctx, sess.SessionID, ReasonMaxSessionsExceeded)
		if res.Err != nil {
			return res.Err
		}
		excess--
		if !res.Changed {
			continue
		}
		e.metricInc(MetricSessionEvicted)
		e.emitEvent(ctx, eventSessionEvicted, SeverityLow, true, eventFields{
			userID:    userID,
			sessionID: sess.SessionID,
			familyID:  res.FamilyID,
			reason:    ReasonMaxSessionsExceeded,
		})
	}
	return nil
}

// activeSessions lists live sessions oldest first. Sessions found expired are
// ended on the way.
func (e *Engine) activeSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	opCtx, cancel := e.opContext(ctx)
	all, err := e.sessionStore.ListForUser(opCtx, userID)
	cancel()
	if err != nil {
		return nil, err
	}

	now := e.now()
	out := make([]*session.Session, 0, len(all))
	for _, sess := range all {
		if !sess.Active {
			continue
		}
		if sess.Expired(now, e.config.Session.IdleTimeout) {
			e.endExpired(ctx, sess)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// GetSession returns one session owned by userID. A session of another user
// is reported as [ErrSessionNotOwned].
func (e *Engine) GetSession(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	sess, err := e.sessionStore.Get(opCtx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, e.storeUnavailable(ctx, "get_session", err)
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotOwned
	}
	return sess, nil
}

// GetUserSessions returns the user's sessions, most recently active first.
// Expired sessions are ended lazily and only returned with includeInactive.
func (e *Engine) GetUserSessions(ctx context.Context, userID string, includeInactive bool) ([]*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var (
		out []*session.Session
		err error
	)
	if includeInactive {
		opCtx, cancel := e.opContext(ctx)
		out, err = e.sessionStore.ListForUser(opCtx, userID)
		cancel()
	} else {
		out, err = e.activeSessions(ctx, userID)
	}
	if err != nil {
		return nil, e.storeUnavailable(ctx, "list_sessions", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// ValidateSession reports whether a session is usable. A session past its
// lifetime or idle window is ended, which also revokes its family. A
// requiredVersion above zero rejects sessions created before that version.
//
// Only store failures are returned as errors.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string, requiredVersion int64) (SessionValidation, error) {
	if err := e.ready(); err != nil {
		return SessionValidation{}, err
	}

	opCtx, cancel := e.opContext(ctx)
	sess, err := e.sessionStore.Get(opCtx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return SessionValidation{Reason: "not_found"}, nil
		}
		return SessionValidation{}, e.storeUnavailable(ctx, "validate_session", err)
	}

	if !sess.Active {
		return SessionValidation{Reason: "inactive", Session: sess}, nil
	}
	if sess.Expired(e.now(), e.config.Session.IdleTimeout) {
		reason := e.endExpired(ctx, sess)
		return SessionValidation{Reason: reason, Session: sess}, nil
	}
	if requiredVersion > 0 && sess.Version < requiredVersion {
		return SessionValidation{Reason: errorReason(ErrSessionVersionStale), Session: sess}, nil
	}
	return SessionValidation{Valid: true, Session: sess}, nil
}

// expiryReason tells an absolute expiry apart from an idle timeout.
func (e *Engine) expiryReason(sess *session.Session) string {
	if !sess.ExpiresAt.After(e.now()) {
		return ReasonExpired
	}
	return ReasonIdleTimeout
}

// endExpired invalidates a session found expired and returns the reason
// recorded on it.
func (e *Engine) endExpired(ctx context.Context, sess *session.Session) string {
	reason := e.expiryReason(sess)
	res := e.flows.InvalidateSession(ctx, sess.SessionID, reason)
	if res.Err != nil {
		e.warnf("goGuard: expired session invalidation failed", "session_id", sess.SessionID, "error", res.Err)
		return reason
	}
	sess.Active = false
	sess.EndReason = reason
	if res.Changed {
		e.metricInc(MetricSessionExpired)
		e.emitEvent(ctx, eventSessionExpired, SeverityLow, true, eventFields{
			userID:    sess.UserID,
			sessionID: sess.SessionID,
			familyID:  res.FamilyID,
			reason:    reason,
		})
	}
	return reason
}

// expireSession ends a session a heartbeat found expired.
func (e *Engine) expireSession(ctx context.Context, sessionID string) {
	opCtx, cancel := e.opContext(ctx)
	sess, err := e.sessionStore.Get(opCtx, sessionID)
	cancel()
	if err != nil {
		e.warnf("goGuard: expired session lookup failed", "session_id", sessionID, "error", err)
		return
	}
	e.endExpired(ctx, sess)
}

// UpdateSessionActivity records a heartbeat from rc.IP. It never
// reactivates an ended session; a session found expired is ended and
// reported as [ErrSessionInactive].
func (e *Engine) UpdateSessionActivity(ctx context.Context, sessionID string, rc RequestContext) error {
	if err := e.ready(); err != nil {
		return err
	}

	opCtx, cancel := e.opContext(ctx)
	status, err := e.sessionStore.Touch(opCtx, sessionID, rc.IP, e.config.Session.IdleTimeout)
	cancel()
	if err != nil {
		return e.storeUnavailable(ctx, "touch_session", err)
	}

	switch status {
	case session.TouchOK:
		return nil
	case session.TouchNotFound:
		return ErrSessionNotFound
	case session.TouchExpired:
		e.expireSession(ctx, sessionID)
		return ErrSessionInactive
	default:
		return ErrSessionInactive
	}
}

// InvalidateSession ends one session and revokes its refresh family.
// Ending an already ended session is a no-op success. actorID is recorded on
// the security event.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID, reason, actorID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := e.flows.InvalidateSession(ctx, sessionID, reason)
	if res.Err != nil {
		return e.storeUnavailable(ctx, "invalidate_session", res.Err)
	}
	if !res.Found {
		return ErrSessionNotFound
	}
	if res.Changed {
		e.recordInvalidation(ctx, "", sessionID, res.FamilyID, reason, actorID)
	}
	return nil
}

func (e *Engine) recordInvalidation(ctx context.Context, userID, sessionID, familyID, reason, actorID string) {
	e.metricInc(MetricSessionInvalidated)
	e.emitEvent(ctx, eventSessionInvalidated, SeverityLow, true, eventFields{
		userID:    userID,
		sessionID: sessionID,
		familyID:  familyID,
		reason:    reason,
		metadata:  actorMetadata(actorID),
	})
}

func actorMetadata(actorID string) func() map[string]string {
	if actorID == "" {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"actor_id": actorID}
	}
}

// InvalidateAllSessions ends every active session of userID and revokes all
// of the user's refresh families, including ones not linked to a session.
// It returns the number of sessions ended.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID, reason, actorID string) (int, error) {
	n, err := e.invalidateAll(ctx, userID, "", reason, actorID)
	if err != nil {
		return n, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()
	revoked, err := e.refreshStore.RevokeAllForUser(opCtx, userID, reason)
	if err != nil {
		return n, e.storeUnavailable(ctx, "revoke_all", err)
	}
	if revoked > 0 {
		e.warnf("goGuard: revoked unlinked families", "user_id", userID, "count", revoked)
	}
	return n, nil
}

// InvalidateAllSessionsExcept ends every active session of userID other
// than keepSessionID.
func (e *Engine) InvalidateAllSessionsExcept(ctx context.Context, userID, keepSessionID, reason, actorID string) (int, error) {
	return e.invalidateAll(ctx, userID, keepSessionID, reason, actorID)
}

func (e *Engine) invalidateAll(ctx context.Context, userID, keep, reason, actorID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	results, err := e.flows.InvalidateAll(ctx, userID, keep, reason)
	n := 0
	for _, res := range results {
		if !res.Changed {
			continue
		}
		n++
		e.recordInvalidation(ctx, userID, res.SessionID, res.FamilyID, reason, actorID)
	}
	if err != nil {
		return n, e.storeUnavailable(ctx, "invalidate_all", err)
	}
	return n, nil
}

// CheckSuspiciousActivity inspects the user's active sessions for signs of
// account sharing or takeover and emits a suspicious_activity event when any
// threshold is crossed.
func (e *Engine) CheckSuspiciousActivity(ctx context.Context, userID string) (SuspicionReport, error) {
	if err := e.ready(); err != nil {
		return SuspicionReport{}, err
	}

	sessions, err := e.activeSessions(ctx, userID)
	if err != nil {
		return SuspicionReport{}, e.storeUnavailable(ctx, "suspicious_activity", err)
	}

	cfg := e.config.Session
	since := e.now().Add(-cfg.SuspiciousWindow)
	ips := make(map[string]struct{})
	recent := make(map[string]struct{})
	types := make(map[device.Type]struct{})
	for _, sess := range sessions {
		if sess.IP != "" {
			ips[sess.IP] = struct{}{}
			if sess.LastActivityAt.After(since) {
				recent[sess.IP] = struct{}{}
			}
		}
		types[device.ParseUserAgent(sess.UserAgent).Type] = struct{}{}
	}

	report := SuspicionReport{
		ActiveSessions: len(sessions),
		DistinctIPs:    len(ips),
		RecentIPs:      len(recent),
		DeviceTypes:    len(types),
	}
	if cfg.SuspiciousIPThreshold > 0 && report.DistinctIPs > cfg.SuspiciousIPThreshold {
		report.Reasons = append(report.Reasons, "multiple_locations")
	}
	if cfg.SuspiciousRecentIPs > 0 && report.RecentIPs > cfg.SuspiciousRecentIPs {
		report.Reasons = append(report.Reasons, "concurrent_locations")
	}
	if cfg.SuspiciousDeviceTypes > 0 && report.DeviceTypes > cfg.SuspiciousDeviceTypes {
		report.Reasons = append(report.Reasons, "multiple_device_types")
	}
	report.Suspicious = len(report.Reasons) > 0

	if report.Suspicious {
		e.metricInc(MetricSuspiciousActivity)
		e.emitEvent(ctx, eventSuspiciousActivity, SeverityHigh, false, eventFields{
			userID: userID,
			reason: report.Reasons[0],
			metadata: func() map[string]string {
				return map[string]string{
					"active_sessions": itoa(report.ActiveSessions),
					"distinct_ips":    itoa(report.DistinctIPs),
					"recent_ips":      itoa(report.RecentIPs),
					"device_types":    itoa(report.DeviceTypes),
				}
			},
		})
	}
	return report, nil
}

// Login turns a verified identity into a session, a registered device and a
// first token pair. A failure after the session was created ends it again.
//
//	Docs: docs/login.md
func (e *Engine) Login(ctx context.Context, id Identity, rc RequestContext) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if id.UserID == "" {
		e.loginFailed(ctx, id, rc, ErrIdentityInvalid)
		return nil, ErrIdentityInvalid
	}

	sess, dev, created, err := e.createSession(ctx, id.UserID, rc, id.Permissions)
	if err != nil {
		e.loginFailed(ctx, id, rc, err)
		return nil, err
	}

	tokens, err := e.Issue(ctx, id.UserID, sess.SessionID, sess.Permissions)
	if err != nil {
		if res := e.flows.InvalidateSession(ctx, sess.SessionID, ReasonLogout); res.Err != nil {
			e.warnf("goGuard: login rollback failed", "session_id", sess.SessionID, "error", res.Err)
		}
		e.loginFailed(ctx, id, rc, err)
		return nil, err
	}
	sess.FamilyID = tokens.FamilyID

	e.metricInc(MetricLoginSuccess)
	e.emitEvent(ctx, eventLoginSuccess, SeverityLow, true, eventFields{
		userID:    id.UserID,
		sessionID: sess.SessionID,
		familyID:  tokens.FamilyID,
		rc:        &rc,
		metadata: func() map[string]string {
			md := map[string]string{"new_device": boolString(created)}
			if id.Provider != "" {
				md["provider"] = id.Provider
			}
			return md
		},
	})

	return &LoginResult{
		Session:   sess,
		Device:    dev,
		NewDevice: created,
		Tokens:    tokens,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, id Identity, rc RequestContext, err error) {
	e.metricInc(MetricLoginFailure)
	e.emitEvent(ctx, eventLoginFailure, SeverityMedium, false, eventFields{
		userID: id.UserID,
		rc:     &rc,
		reason: errorReason(err),
	})
	if errors.Is(err, ErrStoreUnavailable) {
		return
	}
	e.recordFailure(ctx, FailureLogin, rc.IP, id.UserID)
}

// Logout ends a session. An unknown or already ended session is treated as
// logged out.
func (e *Engine) Logout(ctx context.Context, sessionID, actorID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := e.flows.InvalidateSession(ctx, sessionID, ReasonLogout)
	if res.Err != nil {
		return e.storeUnavailable(ctx, "logout", res.Err)
	}
	if res.Changed {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
		e.emitEvent(ctx, eventLogout, SeverityLow, true, eventFields{
			userID:    actorID,
			sessionID: sessionID,
			familyID:  res.FamilyID,
		})
	}
	return nil
}

// LogoutAll ends every session of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := e.InvalidateAllSessions(ctx, userID, ReasonLogoutAll, userID)
	if err != nil {
		return n, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitEvent(ctx, eventLogoutAll, SeverityLow, true, eventFields{
		userID: userID,
		metadata: func() map[string]string {
			return map[string]string{"sessions": itoa(n)}
		},
	})
	return n, nil
}

// CleanupResult reports what [Engine.Cleanup] removed.
type CleanupResult struct {
	Families        int
	ExpiredSessions int
}

// Cleanup prunes a user's expired refresh families from the index and ends
// sessions that expired without being touched. It is optional maintenance;
// every read path already treats expired state as gone.
func (e *Engine) Cleanup(ctx context.Context, userID string) (CleanupResult, error) {
	if err := e.ready(); err != nil {
		return CleanupResult{}, err
	}

	opCtx, cancel := e.opContext(ctx)
	families, err := e.refreshStore.Cleanup(opCtx, userID)
	cancel()
	if err != nil {
		return CleanupResult{}, e.storeUnavailable(ctx, "cleanup", err)
	}

	opCtx, cancel = e.opContext(ctx)
	all, err := e.sessionStore.ListForUser(opCtx, userID)
	cancel()
	if err != nil {
		return CleanupResult{Families: families}, e.storeUnavailable(ctx, "cleanup", err)
	}

	out := CleanupResult{Families: families}
	now := e.now()
	for _, sess := range all {
		if sess.Active && sess.Expired(now, e.config.Session.IdleTimeout) {
			e.endExpired(ctx, sess)
			out.ExpiredSessions++
		}
	}
	return out, nil
}
