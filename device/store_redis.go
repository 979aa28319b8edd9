package device

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const registerDeviceScript = `
local existing = redis.call("GET", KEYS[1])
if existing then
  return {0, existing}
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[3], ARGV[2])
redis.call("SADD", KEYS[2], ARGV[1])
return {1, ARGV[1]}
`

var registerDeviceLua = redis.NewScript(registerDeviceScript)

// KEYS[1] device record, KEYS[2] trusted set.
// ARGV[1] device id, ARGV[2] encoded device, ARGV[3] "1" when trusted.
const updateDeviceScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
if ARGV[3] == "1" then
  redis.call("SADD", KEYS[2], ARGV[1])
else
  redis.call("SREM", KEYS[2], ARGV[1])
end
return 1
`

var updateDeviceLua = redis.NewScript(updateDeviceScript)

// KEYS[1] device record, KEYS[2] trusted set.
// ARGV[1] device id, ARGV[2] encoded device, ARGV[3] cap (0 = none).
// Returns 0 missing, 1 trusted, 2 cap reached.
const trustDeviceScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
  local max = tonumber(ARGV[3])
  if max > 0 and redis.call("SCARD", KEYS[2]) >= max then
    return 2
  end
  redis.call("SADD", KEYS[2], ARGV[1])
end
redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
return 1
`

var trustDeviceLua = redis.NewScript(trustDeviceScript)

// RedisStore keeps devices as binary records in Redis.
//
//	<prefix>:dv:<deviceID>          encoded device
//	<prefix>:dfp:<userID>:<fp>      fingerprint -> device id
//	<prefix>:du:<userID>            set of device ids
//	<prefix>:dt:<userID>            set of trusted device ids
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] under prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(deviceID string) string {
	return s.prefix + ":dv:" + deviceID
}

func (s *RedisStore) fingerprintKey(userID, fingerprint string) string {
	return s.prefix + ":dfp:" + userID + ":" + fingerprint
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":du:" + userID
}

func (s *RedisStore) trustedKey(userID string) string {
	return s.prefix + ":dt:" + userID
}

// Upsert implements [Store].
//
//	Performance: 1 EVALSHA for a new device; EVALSHA + GET + SET for a known one.
func (s *RedisStore) Upsert(ctx context.Context, d *Device) (*Device, bool, error) {
	data, err := Encode(d)
	if err != nil {
		return nil, false, err
	}

	raw, err := registerDeviceLua.Run(
		ctx,
		s.redis,
		[]string{s.fingerprintKey(d.UserID, d.Fingerprint), s.userKey(d.UserID), s.key(d.DeviceID)},
		d.DeviceID,
		data,
	).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return nil, false, fmt.Errorf("%w: unexpected register result", ErrStoreUnavailable)
	}
	created, _ := values[0].(int64)
	deviceID, _ := values[1].(string)
	if created == 1 {
		out := *d
		return &out, true, nil
	}

	existing, err := s.Get(ctx, d.UserID, deviceID)
	if err != nil {
		return nil, false, err
	}
	existing.Active = true
	existing.LastSeen = d.LastSeen
	existing.LastIP = d.LastIP
	existing.UserAgent = d.UserAgent
	existing.Language = d.Language
	if err := s.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, userID, deviceID string) (*Device, error) {
	data, err := s.redis.Get(ctx, s.key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	d, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// ListForUser implements [Store]. Devices are returned most recently seen first.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*Device, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Device{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Device{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*Device, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		d, err := Decode(data)
		if err != nil || d.UserID != userID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

// Update implements [Store]. The trusted set follows d.Trusted.
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) Update(ctx context.Context, d *Device) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	trusted := "0"
	if d.Trusted {
		trusted = "1"
	}
	status, err := updateDeviceLua.Run(
		ctx,
		s.redis,
		[]string{s.key(d.DeviceID), s.trustedKey(d.UserID)},
		d.DeviceID,
		data,
		trusted,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if status == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Trust implements [Store]. The cap is checked against the user's trusted
// set inside the same script that writes the record.
//
//	Performance: GET + 1 EVALSHA.
func (s *RedisStore) Trust(ctx context.Context, userID, deviceID string, maxTrusted int) (*Device, error) {
	d, err := s.Get(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Trusted {
		return d, nil
	}
	if maxTrusted < 0 {
		maxTrusted = 0
	}

	d.Trusted = true
	data, err := Encode(d)
	if err != nil {
		return nil, err
	}
	status, err := trustDeviceLua.Run(
		ctx,
		s.redis,
		[]string{s.key(deviceID), s.trustedKey(userID)},
		deviceID,
		data,
		maxTrusted,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch status {
	case 1:
		return d, nil
	case 2:
		return nil, ErrTrustedDeviceLimit
	default:
		return nil, ErrDeviceNotFound
	}
}
