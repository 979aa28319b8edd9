package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements [Store] on the goguard_devices table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed device store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const deviceColumns = `
	id, user_id, fingerprint, name, device_type, os, browser,
	trusted, active, first_seen, last_seen,
	COALESCE(last_ip, ''), COALESCE(user_agent, ''), COALESCE(language, '')`

// Upsert implements [Store] with a single INSERT ... ON CONFLICT statement.
func (s *PostgresStore) Upsert(ctx context.Context, d *Device) (*Device, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO goguard_devices (
			id, user_id, fingerprint, name, device_type, os, browser,
			trusted, active, first_seen, last_seen, last_ip, user_agent, language
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			FALSE, TRUE, $8, $9, $10, $11, $12
		)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET
			active = TRUE,
			last_seen = EXCLUDED.last_seen,
			last_ip = EXCLUDED.last_ip,
			user_agent = EXCLUDED.user_agent,
			language = EXCLUDED.language
		RETURNING `+deviceColumns+`, (xmax = 0) AS inserted
	`,
		d.DeviceID, d.UserID, d.Fingerprint, d.Name, string(d.Type), d.OS, d.Browser,
		d.FirstSeen, d.LastSeen, nullIfEmpty(d.LastIP), nullIfEmpty(d.UserAgent), nullIfEmpty(d.Language),
	)

	var (
		out      Device
		inserted bool
	)
	if err := scanDevice(row, &out, &inserted); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &out, inserted, nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, userID, deviceID string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM goguard_devices
		WHERE id = $1 AND user_id = $2
	`, deviceID, userID)

	var out Device
	err := scanDevice(row, &out, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &out, nil
}

// ListForUser implements [Store].
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]*Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM goguard_devices
		WHERE user_id = $1
		ORDER BY last_seen DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]*Device, 0)
	for rows.Next() {
		var d Device
		if err := scanDevice(rows, &d, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// Update implements [Store].
func (s *PostgresStore) Update(ctx context.Context, d *Device) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE goguard_devices
		SET name = $3, trusted = $4, active = $5, last_seen = $6,
		    last_ip = $7, user_agent = $8, language = $9
		WHERE id = $1 AND user_id = $2
	`, d.DeviceID, d.UserID, d.Name, d.Trusted, d.Active, d.LastSeen,
		nullIfEmpty(d.LastIP), nullIfEmpty(d.UserAgent), nullIfEmpty(d.Language))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Trust implements [Store]. The user's device rows are locked for the
// duration of the count and the update, so concurrent trusts serialize.
func (s *PostgresStore) Trust(ctx context.Context, userID, deviceID string, maxTrusted int) (*Device, error) {
	var out Device
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			SELECT 1 FROM goguard_devices
			WHERE user_id = $1
			FOR UPDATE
		`, userID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			SELECT `+deviceColumns+`
			FROM goguard_devices
			WHERE id = $1 AND user_id = $2
		`, deviceID, userID)
		if err := scanDevice(row, &out, nil); err != nil {
			return err
		}
		if out.Trusted {
			return nil
		}

		if maxTrusted > 0 {
			var trusted int
			if err := tx.QueryRow(ctx, `
				SELECT count(*) FROM goguard_devices
				WHERE user_id = $1 AND trusted AND active
			`, userID).Scan(&trusted); err != nil {
				return err
			}
			if trusted >= maxTrusted {
				return ErrTrustedDeviceLimit
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE goguard_devices SET trusted = TRUE
			WHERE id = $1 AND user_id = $2
		`, deviceID, userID); err != nil {
			return err
		}
		out.Trusted = true
		return nil
	})
	switch {
	case err == nil:
		return &out, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrDeviceNotFound
	case errors.Is(err, ErrTrustedDeviceLimit):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func scanDevice(row pgx.Row, d *Device, inserted *bool) error {
	var deviceType string
	dest := []any{
		&d.DeviceID, &d.UserID, &d.Fingerprint, &d.Name, &deviceType, &d.OS, &d.Browser,
		&d.Trusted, &d.Active, &d.FirstSeen, &d.LastSeen,
		&d.LastIP, &d.UserAgent, &d.Language,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	d.Type = Type(deviceType)
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
