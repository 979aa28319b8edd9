package refresh

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

// ErrFamilyNotFound is returned when a family record does not exist.
var ErrFamilyNotFound = errors.New("refresh family not found")

// ErrMemberNotFound is returned when a member record does not exist.
var ErrMemberNotFound = errors.New("refresh member not found")

// ErrInvalidRecord is returned when a stored record is missing required fields.
var ErrInvalidRecord = errors.New("refresh record corrupt")

// keyRetention keeps records readable briefly past their logical expiry so
// that expiry is reported as such rather than as a missing record.
const keyRetention = time.Minute

// RotateStatus is the outcome of [Store.RotateMember].
type RotateStatus int

const (
	RotateOK RotateStatus = iota
	RotateConflict
	RotateRevoked
	RotateExpired
	RotateNotFound
)

func (s RotateStatus) String() string {
	switch s {
	case RotateOK:
		return "ok"
	case RotateConflict:
		return "conflict"
	case RotateRevoked:
		return "revoked"
	case RotateExpired:
		return "expired"
	case RotateNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Family describes one refresh-token lineage.
type Family struct {
	FamilyID       string
	UserID         string
	SessionID      string
	Permissions    []string
	CurrentTokenID string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Revoked        bool
	RevokedReason  string
	RevokedAt      time.Time
	Rotations      int64
}

// Member is one issued refresh token belonging to a family.
type Member struct {
	TokenID   string
	FamilyID  string
	UserID    string
	SessionID string
	Consumed  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

const rotateMemberScript = `
local fam = redis.call("HMGET", KEYS[1], "current", "revoked", "expires")
if not fam[1] then
  return 4
end
if fam[2] == "1" then
  return 2
end
local now_ms = tonumber(ARGV[7])
if tonumber(fam[3]) <= now_ms then
  return 3
end
if fam[1] ~= ARGV[1] then
  return 1
end

if redis.call("EXISTS", KEYS[2]) == 1 then
  redis.call("HSET", KEYS[2], "consumed", "1")
end

redis.call("HSET", KEYS[3],
  "fam", ARGV[8],
  "user", ARGV[3],
  "sid", ARGV[4],
  "issued", ARGV[5],
  "expires", ARGV[6],
  "consumed", "0")
redis.call("PEXPIRE", KEYS[3], ARGV[9])

redis.call("HSET", KEYS[1], "current", ARGV[2])
redis.call("HINCRBY", KEYS[1], "rotations", 1)
return 0
`

var rotateMemberLua = redis.NewScript(rotateMemberScript)

const revokeFamilyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 2
end
redis.call("HSET", KEYS[1], "revoked", "1", "reason", ARGV[1], "revoked_at", ARGV[2])
return 1
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

const (
	revokeStatusMissing int64 = 0
	revokeStatusRevoked int64 = 1
	revokeStatusAlready int64 = 2
)

// Store is the Redis-backed refresh token store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store] under the given key prefix. A nil clock uses
// time.Now.
func NewStore(rdb redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{redis: rdb, prefix: prefix, now: now}
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":rf:" + familyID
}

func (s *Store) memberKey(tokenID string) string {
	return s.prefix + ":rm:" + tokenID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":ru:" + userID
}

func (s *Store) ttlUntil(at time.Time) time.Duration {
	ttl := at.Sub(s.now()) + keyRetention
	if ttl < keyRetention {
		ttl = keyRetention
	}
	return ttl
}

// CreateFamily persists a new family whose first member is tokenID.
//
// The family keeps the permission list so rotated access tokens carry the
// same permissions.
//
//	Performance: 1 transactional pipeline (2 HSET, 2 PEXPIRE, SADD).
func (s *Store) CreateFamily(
	ctx context.Context,
	familyID, userID, sessionID, tokenID string,
	permissions []string,
	memberExpiry, familyExpiry time.Time,
) (*Family, *Member, error) {
	if familyID == "" || userID == "" || tokenID == "" {
		return nil, nil, errors.New("family id, user id and token id are required")
	}
	perms, err := json.Marshal(permissions)
	if err != nil {
		return nil, nil, err
	}
	if memberExpiry.After(familyExpiry) {
		memberExpiry = familyExpiry
	}

	now := s.now()
	fam := &Family{
		FamilyID:       familyID,
		UserID:         userID,
		SessionID:      sessionID,
		Permissions:    append([]string(nil), permissions...),
		CurrentTokenID: tokenID,
		CreatedAt:      now,
		ExpiresAt:      familyExpiry,
	}
	member := &Member{
		TokenID:   tokenID,
		FamilyID:  familyID,
		UserID:    userID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: memberExpiry,
	}

	famKey := s.familyKey(familyID)
	memberKey := s.memberKey(tokenID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, famKey,
			"user", userID,
			"sid", sessionID,
			"perms", string(perms),
			"current", tokenID,
			"created", unixMilli(now),
			"expires", unixMilli(familyExpiry),
			"revoked", "0",
			"rotations", 0,
		)
		pipe.PExpire(ctx, famKey, s.ttlUntil(familyExpiry))
		pipe.HSet(ctx, memberKey,
			"fam", familyID,
			"user", userID,
			"sid", sessionID,
			"issued", unixMilli(now),
			"expires", unixMilli(memberExpiry),
			"consumed", "0",
		)
		pipe.PExpire(ctx, memberKey, s.ttlUntil(memberExpiry))
		pipe.SAdd(ctx, s.userKey(userID), familyID)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return fam, member, nil
}

// GetMember loads a member by token id.
func (s *Store) GetMember(ctx context.Context, tokenID string) (*Member, error) {
	fields, err := s.redis.HGetAll(ctx, s.memberKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, errors.Join(redis.Nil, ErrMemberNotFound)
	}
	if fields["fam"] == "" || fields["user"] == "" {
		return nil, ErrInvalidRecord
	}
	return &Member{
		TokenID:   tokenID,
		FamilyID:  fields["fam"],
		UserID:    fields["user"],
		SessionID: fields["sid"],
		Consumed:  fields["consumed"] == "1",
		IssuedAt:  parseMilli(fields["issued"]),
		ExpiresAt: parseMilli(fields["expires"]),
	}, nil
}

// GetFamily loads a family by id.
func (s *Store) GetFamily(ctx context.Context, familyID string) (*Family, error) {
	fields, err := s.redis.HGetAll(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, errors.Join(redis.Nil, ErrFamilyNotFound)
	}
	if fields["user"] == "" || fields["current"] == "" {
		return nil, ErrInvalidRecord
	}
	var perms []string
	if raw := fields["perms"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &perms); err != nil {
			return nil, ErrInvalidRecord
		}
	}
	rotations, _ := strconv.ParseInt(fields["rotations"], 10, 64)
	return &Family{
		FamilyID:       familyID,
		UserID:         fields["user"],
		SessionID:      fields["sid"],
		Permissions:    perms,
		CurrentTokenID: fields["current"],
		CreatedAt:      parseMilli(fields["created"]),
		ExpiresAt:      parseMilli(fields["expires"]),
		Revoked:        fields["revoked"] == "1",
		RevokedReason:  fields["reason"],
		RevokedAt:      parseMilli(fields["revoked_at"]),
		Rotations:      rotations,
	}, nil
}

// RotateMember atomically replaces the family's current member oldTokenID
// with next. Only one caller presenting oldTokenID can observe [RotateOK];
// every later or concurrent caller observes [RotateConflict].
//
//	Performance: 1 EVALSHA.
func (s *Store) RotateMember(ctx context.Context, familyID, oldTokenID string, next Member) (RotateStatus, error) {
	if next.TokenID == "" || next.TokenID == oldTokenID {
		return RotateConflict, errors.New("next token id must be new")
	}
	now := s.now()
	issued := next.IssuedAt
	if issued.IsZero() {
		issued = now
	}

	status, err := rotateMemberLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID), s.memberKey(oldTokenID), s.memberKey(next.TokenID)},
		oldTokenID,
		next.TokenID,
		next.UserID,
		next.SessionID,
		unixMilli(issued),
		unixMilli(next.ExpiresAt),
		unixMilli(now),
		familyID,
		s.ttlUntil(next.ExpiresAt).Milliseconds(),
	).Int64()
	if err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch RotateStatus(status) {
	case RotateOK, RotateConflict, RotateRevoked, RotateExpired, RotateNotFound:
		return RotateStatus(status), nil
	default:
		return RotateNotFound, fmt.Errorf("%w: unexpected rotate status %d", ErrRedisUnavailable, status)
	}
}

// RevokeFamily marks a family revoked. The first reason recorded wins and
// repeated calls succeed without change. The returned bool reports whether
// this call performed the revocation.
func (s *Store) RevokeFamily(ctx context.Context, familyID, reason string) (bool, error) {
	status, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID)},
		reason,
		unixMilli(s.now()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return status == revokeStatusRevoked, nil
}

// IsFamilyRevoked reports whether a family can no longer be used. A missing
// or expired family counts as revoked.
func (s *Store) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	vals, err := s.redis.HMGet(ctx, s.familyKey(familyID), "revoked", "expires").Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	revoked, _ := vals[0].(string)
	expires, _ := vals[1].(string)
	if revoked == "" || expires == "" {
		return true, nil
	}
	if revoked == "1" {
		return true, nil
	}
	return !parseMilli(expires).After(s.now()), nil
}

// RevokeAllForUser revokes every family indexed for the user and returns how
// many were newly revoked.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		ok, err := s.RevokeFamily(ctx, id, reason)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

// Cleanup removes index entries for families whose records have expired and
// returns the number of entries pruned.
func (s *Store) Cleanup(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, s.familyKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	stale := make([]interface{}, 0, len(ids))
	for i, cmd := range existsCmds {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(stale), nil
}

// FamilyIDs returns the family ids indexed for a user.
func (s *Store) FamilyIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func unixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func parseMilli(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
