package giveaway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"giveaway-overlay-backend/internal/models"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository on an existing connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS giveaways (
    id          UUID PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ,
    duration_ms BIGINT NOT NULL,
    elapsed_ms  BIGINT NOT NULL DEFAULT 0,
    paused      BOOLEAN NOT NULL DEFAULT FALSE,
    cancelled   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS giveaways_owner_open_idx
    ON giveaways (owner_id, started_at DESC)
    WHERE cancelled = FALSE AND ended_at IS NULL;

CREATE TABLE IF NOT EXISTS contributions (
    id                   UUID PRIMARY KEY,
    giveaway_id          UUID NOT NULL REFERENCES giveaways (id),
    participant_id       TEXT NOT NULL,
    display_name         TEXT NOT NULL,
    bits                 BIGINT NOT NULL DEFAULT 0,
    subs                 BIGINT NOT NULL DEFAULT 0,
    first_contributed_at TIMESTAMPTZ NOT NULL,
    UNIQUE (giveaway_id, participant_id)
);
`

// EnsureSchema creates the tables if they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (r *Repository) CreateGiveaway(ctx context.Context, g *models.Giveaway) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO giveaways (id, owner_id, started_at, ended_at, duration_ms, elapsed_ms, paused, cancelled)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, g.ID, g.OwnerID, g.StartedAt, g.EndedAt, g.DurationMs, g.ElapsedMs, g.Paused, g.Cancelled)
	if err != nil {
		return fmt.Errorf("failed to create giveaway: %w", err)
	}
	return nil
}

func (r *Repository) UpdateGiveaway(ctx context.Context, g *models.Giveaway) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE giveaways
        SET ended_at = $2, elapsed_ms = $3, paused = $4, cancelled = $5
        WHERE id = $1
    `, g.ID, g.EndedAt, g.ElapsedMs, g.Paused, g.Cancelled)
	if err != nil {
		return fmt.Errorf("failed to update giveaway: %w", err)
	}
	return nil
}

func (r *Repository) CurrentGiveaway(ctx context.Context, ownerID string) (*models.Giveaway, error) {
	var g models.Giveaway
	err := r.pool.QueryRow(ctx, `
        SELECT id, owner_id, started_at, ended_at, duration_ms, elapsed_ms, paused, cancelled
        FROM giveaways
        WHERE owner_id = $1 AND cancelled = FALSE AND ended_at IS NULL
        ORDER BY started_at DESC
        LIMIT 1
    `, ownerID).Scan(&g.ID, &g.OwnerID, &g.StartedAt, &g.EndedAt, &g.DurationMs, &g.ElapsedMs, &g.Paused, &g.Cancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current giveaway: %w", err)
	}
	return &g, nil
}

func (r *Repository) CreateContribution(ctx context.Context, rec *models.ContributionRecord) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO contributions (id, giveaway_id, participant_id, display_name, bits, subs, first_contributed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (giveaway_id, participant_id) DO NOTHING
    `, rec.ID, rec.GiveawayID, rec.ParticipantID, rec.DisplayName, rec.Bits, rec.Subs, rec.FirstContributedAt)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

func (r *Repository) UpdateContribution(ctx context.Context, rec *models.ContributionRecord) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE contributions
        SET display_name = $2, bits = $3, subs = $4
        WHERE id = $1
    `, rec.ID, rec.DisplayName, rec.Bits, rec.Subs)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	return nil
}

func (r *Repository) ListContributions(ctx context.Context, giveawayID uuid.UUID) ([]models.ContributionRecord, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, giveaway_id, participant_id, display_name, bits, subs, first_contributed_at
        FROM contributions
        WHERE giveaway_id = $1
        ORDER BY first_contributed_at, participant_id
    `, giveawayID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var records []models.ContributionRecord
	for rows.Next() {
		var rec models.ContributionRecord
		if err := rows.Scan(&rec.ID, &rec.GiveawayID, &rec.ParticipantID, &rec.DisplayName, &rec.Bits, &rec.Subs, &rec.FirstContributedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contributions: %w", err)
	}
	return records, nil
}
