package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the backing Redis call fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no record exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored session is missing required fields.
var ErrSessionCorrupt = errors.New("session corrupt")

// TouchStatus is the outcome of [Store.Touch].
type TouchStatus int

const (
	TouchNotFound TouchStatus = iota
	TouchInactive
	TouchExpired
	TouchOK
)

// LinkStatus is the outcome of [Store.LinkFamily].
type LinkStatus int

const (
	LinkNotFound LinkStatus = iota
	LinkOK
	LinkInactive
)

// DeactivateResult reports what [Store.Deactivate] changed.
type DeactivateResult struct {
	Found    bool
	Changed  bool
	FamilyID string
}

const touchSessionScript = `
local v = redis.call("HMGET", KEYS[1], "active", "last", "expires")
if not v[1] then
  return 0
end
if v[1] ~= "1" then
  return 1
end
local now_ms = tonumber(ARGV[1])
if tonumber(v[3]) <= now_ms then
  return 2
end
local idle_ms = tonumber(ARGV[2])
if idle_ms > 0 and now_ms - tonumber(v[2]) > idle_ms then
  return 2
end
redis.call("HSET", KEYS[1], "last", ARGV[1])
if ARGV[3] ~= "" then
  redis.call("HSET", KEYS[1], "ip", ARGV[3])
end
return 3
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deactivateSessionScript = `
local v = redis.call("HMGET", KEYS[1], "active", "fam")
if not v[1] then
  return {0, ""}
end
local fam = v[2] or ""
if v[1] ~= "1" then
  return {2, fam}
end
redis.call("HSET", KEYS[1], "active", "0", "ended", ARGV[1], "reason", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {1, fam}
`

var deactivateSessionLua = redis.NewScript(deactivateSessionScript)

const linkFamilyScript = `
local active = redis.call("HGET", KEYS[1], "active")
if not active then
  return 0
end
if active ~= "1" then
  return 2
end
redis.call("HSET", KEYS[1], "fam", ARGV[1])
return 1
`

var linkFamilyLua = redis.NewScript(linkFamilyScript)

const (
	deactivateStatusMissing int64 = 0
	deactivateStatusChanged int64 = 1
	deactivateStatusAlready int64 = 2
)

// Store is a Redis-backed session store.
//
//	Docs: docs/session.md
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewStore creates a session [Store]. retention controls how long an ended
// session stays readable for listings. A nil clock uses time.Now.
func NewStore(rdb redis.UniversalClient, prefix string, retention time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Store{
		redis:     rdb,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":su:" + userID
}

func (s *Store) versionKey(userID string) string {
	return s.prefix + ":sv:" + userID
}

// Save persists a session and indexes it under its user.
//
//	Performance: 1 transactional pipeline (HSET, PEXPIRE, ZADD).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess.SessionID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}
	perms, err := json.Marshal(sess.Permissions)
	if err != nil {
		return err
	}

	ttl := sess.ExpiresAt.Sub(s.now()) + s.retention
	if !sess.Active || ttl < s.retention {
		ttl = s.retention
	}

	key := s.key(sess.SessionID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user", sess.UserID,
			"device", sess.DeviceID,
			"fam", sess.FamilyID,
			"perms", string(perms),
			"ver", sess.Version,
			"ip", sess.IP,
			"ua", sess.UserAgent,
			"created", sess.CreatedAt.UnixMilli(),
			"last", sess.LastActivityAt.UnixMilli(),
			"expires", sess.ExpiresAt.UnixMilli(),
			"active", boolFlag(sess.Active),
			"ended", milliOrZero(sess.EndedAt),
			"reason", sess.EndReason,
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.ZAdd(ctx, s.userKey(sess.UserID), redis.Z{
			Score:  float64(sess.CreatedAt.UnixMilli()),
			Member: sess.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by id.
//
//	Performance: 1 Redis HGETALL.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, errors.Join(redis.Nil, ErrSessionNotFound)
	}
	return decodeFields(sessionID, fields)
}

// ListForUser returns every readable session of a user, oldest first. Index
// entries whose record has expired are pruned.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeFields(ids[i], fields)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return out, nil
}

// NextVersion increments and returns the user's session version.
func (s *Store) NextVersion(ctx context.Context, userID string) (int64, error) {
	v, err := s.redis.Incr(ctx, s.versionKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return v, nil
}

// Touch records activity on an active session. It never reactivates an ended
// session and reports [TouchExpired] when the session is idle or past expiry.
//
//	Performance: 1 EVALSHA.
func (s *Store) Touch(ctx context.Context, sessionID, ip string, idle time.Duration) (TouchStatus, error) {
	status, err := touchSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		s.now().UnixMilli(),
		idle.Milliseconds(),
		ip,
	).Int64()
	if err != nil {
		return TouchNotFound, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return TouchStatus(status), nil
}

// Deactivate ends a session with reason. Ending an already ended session
// succeeds without change. The session's family id is returned either way so
// the caller can revoke it.
//
//	Performance: 1 EVALSHA.
func (s *Store) Deactivate(ctx context.Context, sessionID, reason string) (DeactivateResult, error) {
	raw, err := deactivateSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		s.now().UnixMilli(),
		reason,
		s.retention.Milliseconds(),
	).Result()
	if err != nil {
		return DeactivateResult{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return DeactivateResult{}, fmt.Errorf("%w: unexpected deactivate result", ErrRedisUnavailable)
	}
	status, ok := values[0].(int64)
	if !ok {
		return DeactivateResult{}, fmt.Errorf("%w: unexpected deactivate status", ErrRedisUnavailable)
	}
	familyID, _ := values[1].(string)

	switch status {
	case deactivateStatusMissing:
		return DeactivateResult{}, nil
	case deactivateStatusChanged:
		return DeactivateResult{Found: true, Changed: true, FamilyID: familyID}, nil
	case deactivateStatusAlready:
		return DeactivateResult{Found: true, FamilyID: familyID}, nil
	default:
		return DeactivateResult{}, fmt.Errorf("%w: unexpected deactivate status %d", ErrRedisUnavailable, status)
	}
}

// LinkFamily binds a refresh family to an active session.
func (s *Store) LinkFamily(ctx context.Context, sessionID, familyID string) (LinkStatus, error) {
	status, err := linkFamilyLua.Run(ctx, s.redis, []string{s.key(sessionID)}, familyID).Int64()
	if err != nil {
		return LinkNotFound, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return LinkStatus(status), nil
}

func decodeFields(sessionID string, fields map[string]string) (*Session, error) {
	if fields["user"] == "" || fields["active"] == "" {
		return nil, ErrSessionCorrupt
	}
	var perms []string
	if raw := fields["perms"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &perms); err != nil {
			return nil, ErrSessionCorrupt
		}
	}
	version, _ := strconv.ParseInt(fields["ver"], 10, 64)

	return &Session{
		SessionID:      sessionID,
		UserID:         fields["user"],
		DeviceID:       fields["device"],
		FamilyID:       fields["fam"],
		Permissions:    perms,
		Version:        version,
		IP:             fields["ip"],
		UserAgent:      fields["ua"],
		CreatedAt:      parseMilli(fields["created"]),
		LastActivityAt: parseMilli(fields["last"]),
		ExpiresAt:      parseMilli(fields["expires"]),
		Active:         fields["active"] == "1",
		EndedAt:        parseMilli(fields["ended"]),
		EndReason:      fields["reason"],
	}, nil
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func milliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func parseMilli(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
