// Package store caches scan results in Postgres keyed by image hash, so a
// re-submitted identical smear does not re-bill the remote service.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"malaria-scan/internal/diag"
)

var ErrNotFound = pgx.ErrNoRows

type ScanRepo struct{ DB *pgxpool.Pool }

func NewScanRepo(db *pgxpool.Pool) *ScanRepo { return &ScanRepo{DB: db} }

type ScanRow struct {
	ID        int64
	CreatedAt time.Time
	ImageHash string
	Model     string
	Result    diag.AnalysisResult
	Verified  bool
}

// Migrate creates the cache table if missing.
func (r *ScanRepo) Migrate(ctx context.Context) error {
	const q = `
create table if not exists scan_results (
  id bigint generated always as identity primary key,
  created_at timestamptz not null default now(),
  image_hash text not null,
  model text not null,
  result_json jsonb not null,
  verified boolean not null default false,
  unique (image_hash, model)
)`
	_, err := r.DB.Exec(ctx, q)
	return err
}

// FindByHash fetches the newest entry for (image_hash, model). With
// maxAge > 0 a stale entry counts as not found; otherwise age is ignored.
// Only verified results are served from cache — a degraded DL-only result
// must not shadow a future successful verification.
func (r *ScanRepo) FindByHash(ctx context.Context, imageHash, model string, maxAge time.Duration) (*ScanRow, error) {
	const q = `
select id, created_at, image_hash, model, result_json, verified
from scan_results
where image_hash = $1 and model = $2 and verified
order by created_at desc
limit 1`
	row := r.DB.QueryRow(ctx, q, imageHash, model)

	var (
		sr ScanRow
		js []byte
	)
	if err := row.Scan(&sr.ID, &sr.CreatedAt, &sr.ImageHash, &sr.Model, &js, &sr.Verified); err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(sr.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	if err := json.Unmarshal(js, &sr.Result); err != nil {
		// Broken stored JSON reads as a miss.
		return nil, ErrNotFound
	}
	return &sr, nil
}

// Upsert stores a result for (image_hash, model), replacing any older entry.
func (r *ScanRepo) Upsert(ctx context.Context, imageHash, model string, res diag.AnalysisResult) error {
	js, _ := json.Marshal(res)
	const q = `
insert into scan_results (image_hash, model, result_json, verified)
values ($1, $2, $3, $4)
on conflict (image_hash, model) do update
set created_at = now(),
    result_json = excluded.result_json,
    verified = excluded.verified`
	_, err := r.DB.Exec(ctx, q, imageHash, model, js, res.Verified)
	return err
}

// PurgeOlderThan drops stale cache rows so the table does not grow without
// bound.
func (r *ScanRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.DB.Exec(ctx, `delete from scan_results where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
