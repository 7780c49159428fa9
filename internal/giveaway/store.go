package giveaway

import (
	"context"

	"github.com/google/uuid"

	"giveaway-overlay-backend/internal/models"
)

// Store is the persistent checkpoint target for giveaways and contribution
// tallies. The in-memory state owned by the service is the source of truth;
// the store only needs to be good enough to survive a process restart.
type Store interface {
	CreateGiveaway(ctx context.Context, g *models.Giveaway) error
	UpdateGiveaway(ctx context.Context, g *models.Giveaway) error

	// CurrentGiveaway returns the newest giveaway for the owner that is
	// neither cancelled nor ended, or nil when there is none.
	CurrentGiveaway(ctx context.Context, ownerID string) (*models.Giveaway, error)

	CreateContribution(ctx context.Context, rec *models.ContributionRecord) error
	UpdateContribution(ctx context.Context, rec *models.ContributionRecord) error

	// ListContributions returns every tally for a giveaway ordered by
	// first contribution time, for leaderboard rehydration.
	ListContributions(ctx context.Context, giveawayID uuid.UUID) ([]models.ContributionRecord, error)
}
