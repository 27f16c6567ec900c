package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

const (
	// timeFormat is the ISO 8601 format used for all stored timestamps.
	// Fixed width keeps lexical and chronological order identical.
	timeFormat = "2006-01-02T15:04:05.000Z"
)

// sqlStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound per dialect.
type sqlStore struct {
	db *sql.DB
	// numbered selects $1, $2, ... placeholders (PostgreSQL).
	numbered bool
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Close closes the underlying database connection.
func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- Asset operations ----

const assetColumns = `id, ` + assetInsertColumns

// assetInsertColumns omits id, which the database assigns.
const assetInsertColumns = `primary_path, variants, remote_url, local_deleted_at, created_at, updated_at`

// PutAsset inserts or replaces an asset record.
func (s *sqlStore) PutAsset(ctx context.Context, a *Asset) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	variants, err := encodeVariants(a.Variants)
	if err != nil {
		return err
	}
	args := []any{
		a.PrimaryPath,
		variants,
		a.RemoteURL,
		formatTimePtr(a.LocalDeletedAt),
		a.CreatedAt.UTC().Format(timeFormat),
		a.UpdatedAt.Format(timeFormat),
	}

	if a.ID == 0 {
		var id int64
		err := s.queryRow(ctx,
			`INSERT INTO assets (`+assetInsertColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?)
			 RETURNING id`,
			args...,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting asset %q: %w", a.PrimaryPath, err)
		}
		a.ID = id
		return nil
	}

	_, err = s.exec(ctx,
		`INSERT INTO assets (`+assetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			primary_path = excluded.primary_path,
			variants = excluded.variants,
			remote_url = excluded.remote_url,
			local_deleted_at = excluded.local_deleted_at,
			updated_at = excluded.updated_at`,
		append([]any{a.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("putting asset %d: %w", a.ID, err)
	}
	if s.numbered {
		// An explicit id bypasses the identity sequence; move it past the max.
		if _, err := s.exec(ctx,
			`SELECT setval(pg_get_serial_sequence('assets', 'id'), (SELECT MAX(id) FROM assets))`,
		); err != nil {
			return fmt.Errorf("advancing asset id sequence: %w", err)
		}
	}
	return nil
}

// GetAsset retrieves an asset by ID.
func (s *sqlStore) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	row := s.queryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset %d: %w", id, err)
	}
	return a, nil
}

// FindAssetByPath retrieves the first asset with the given primary path.
func (s *sqlStore) FindAssetByPath(ctx context.Context, primaryPath string) (*Asset, error) {
	row := s.queryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE primary_path = ? ORDER BY created_at, id LIMIT 1`,
		primaryPath,
	)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding asset %q: %w", primaryPath, err)
	}
	return a, nil
}

// DeleteAsset removes an asset record. Deleting a missing asset succeeds.
func (s *sqlStore) DeleteAsset(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting asset %d: %w", id, err)
	}
	return nil
}

// whereClause renders f as a SQL WHERE clause (including the keyword) or "".
func whereClause(f Filter) string {
	var conds []string
	switch f.State {
	case StateLocal:
		conds = append(conds, "remote_url = ''")
	case StateOffloaded:
		conds = append(conds, "remote_url <> ''")
	}
	if f.RequirePrimary {
		conds = append(conds, "primary_path <> ''")
	}
	if f.LocalDeleted != nil {
		if *f.LocalDeleted {
			conds = append(conds, "local_deleted_at IS NOT NULL")
		} else {
			conds = append(conds, "local_deleted_at IS NULL")
		}
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// ListAssets returns one page of matching assets in stable order.
func (s *sqlStore) ListAssets(ctx context.Context, f Filter, offset, limit int) ([]Asset, error) {
	if offset < 0 || limit <= 0 {
		return nil, offerr.ErrInvalidArgument.WithMessage("invalid page: offset=%d limit=%d", offset, limit)
	}
	rows, err := s.query(ctx,
		`SELECT `+assetColumns+` FROM assets`+whereClause(f)+
			` ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assets: %w", err)
	}
	return out, nil
}

// CountAssets counts matching assets.
func (s *sqlStore) CountAssets(ctx context.Context, f Filter) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM assets`+whereClause(f)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting assets: %w", err)
	}
	return n, nil
}

// updateOne runs an UPDATE expected to touch exactly one asset row.
func (s *sqlStore) updateOne(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating asset %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return offerr.ErrAssetNotFound.WithMessage("asset %d not found", id)
	}
	return nil
}

// MarkOffloaded sets the remote URL marker.
func (s *sqlStore) MarkOffloaded(ctx context.Context, id int64, remoteURL string) error {
	return s.updateOne(ctx, id,
		`UPDATE assets SET remote_url = ?, updated_at = ? WHERE id = ?`,
		remoteURL, time.Now().UTC().Format(timeFormat), id)
}

// MarkReverted clears the remote URL marker and the local-deleted time.
func (s *sqlStore) MarkReverted(ctx context.Context, id int64) error {
	return s.updateOne(ctx, id,
		`UPDATE assets SET remote_url = '', local_deleted_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), id)
}

// MarkLocalDeleted records that local copies were purged.
func (s *sqlStore) MarkLocalDeleted(ctx context.Context, id int64, at time.Time) error {
	return s.updateOne(ctx, id,
		`UPDATE assets SET local_deleted_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(timeFormat), time.Now().UTC().Format(timeFormat), id)
}

// ---- Checkpoint operations ----

const checkpointColumns = `operation, owner, step_offset, skipped, page_size, started_at, updated_at, expires_at`

// GetCheckpoint returns the live checkpoint for operation.
func (s *sqlStore) GetCheckpoint(ctx context.Context, operation string) (*Checkpoint, error) {
	row := s.queryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE operation = ? AND expires_at > ?`,
		operation, time.Now().UTC().Format(timeFormat),
	)
	c, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting checkpoint %q: %w", operation, err)
	}
	return c, nil
}

// PutCheckpoint inserts or replaces the checkpoint for c.Operation.
func (s *sqlStore) PutCheckpoint(ctx context.Context, c *Checkpoint) error {
	_, err := s.exec(ctx,
		`INSERT INTO checkpoints (`+checkpointColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (operation) DO UPDATE SET
			owner = excluded.owner,
			step_offset = excluded.step_offset,
			skipped = excluded.skipped,
			page_size = excluded.page_size,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		c.Operation, c.Owner, c.Offset, c.Skipped, c.PageSize,
		c.StartedAt.UTC().Format(timeFormat),
		c.UpdatedAt.UTC().Format(timeFormat),
		c.ExpiresAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("putting checkpoint %q: %w", c.Operation, err)
	}
	return nil
}

// DeleteCheckpoint removes the checkpoint for operation, if any.
func (s *sqlStore) DeleteCheckpoint(ctx context.Context, operation string) error {
	if _, err := s.exec(ctx, `DELETE FROM checkpoints WHERE operation = ?`, operation); err != nil {
		return fmt.Errorf("deleting checkpoint %q: %w", operation, err)
	}
	return nil
}

// ListCheckpoints returns every live checkpoint ordered by operation.
func (s *sqlStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.query(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE expires_at > ? ORDER BY operation`,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning checkpoint row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ---- Helpers ----

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var a Asset
	var variants, createdAt, updatedAt string
	var localDeletedAt sql.NullString
	if err := row.Scan(&a.ID, &a.PrimaryPath, &variants, &a.RemoteURL, &localDeletedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if variants != "" && variants != "[]" {
		if err := json.Unmarshal([]byte(variants), &a.Variants); err != nil {
			return nil, fmt.Errorf("decoding variants of asset %d: %w", a.ID, err)
		}
	}
	if localDeletedAt.Valid {
		if t, err := time.Parse(timeFormat, localDeletedAt.String); err == nil {
			a.LocalDeletedAt = &t
		}
	}
	a.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	a.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &a, nil
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var c Checkpoint
	var startedAt, updatedAt, expiresAt string
	if err := row.Scan(&c.Operation, &c.Owner, &c.Offset, &c.Skipped, &c.PageSize, &startedAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}
	c.StartedAt, _ = time.Parse(timeFormat, startedAt)
	c.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	c.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	return &c, nil
}

func encodeVariants(v []Variant) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding variants: %w", err)
	}
	return string(b), nil
}

// formatTimePtr converts an optional time to a nullable column value.
func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}
