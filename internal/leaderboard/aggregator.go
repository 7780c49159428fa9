package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"giveaway-overlay-backend/internal/gateway"
	"giveaway-overlay-backend/internal/models"
)

// Broadcaster is what the aggregator needs from the hub.
type Broadcaster interface {
	Broadcast(msg gateway.Message)
}

// ContributionStore persists per-participant tallies. Failures are logged;
// the in-memory cache stays authoritative.
type ContributionStore interface {
	CreateContribution(ctx context.Context, rec *models.ContributionRecord) error
	UpdateContribution(ctx context.Context, rec *models.ContributionRecord) error
}

// Aggregator maintains the in-memory contribution cache for the active
// giveaway, recomputes ranked top-N views, and debounces their broadcast.
//
// All methods must be called from the state machine's event loop; the
// debounce timers post their flushes back onto that loop, so the cache is
// never touched concurrently.
type Aggregator struct {
	clock clockwork.Clock
	hub   Broadcaster
	store ContributionStore
	post  func(fn func())

	topN   map[models.Metric]int
	window time.Duration

	records map[string]*models.ContributionRecord
	order   []string // participant IDs in first-contribution order

	// One pending debounce timer per metric, nil when no flush is pending.
	// The handle doubles as the staleness guard: a fire whose timer no
	// longer matches the slot is ignored.
	timers map[models.Metric]clockwork.Timer
}

// NewAggregator creates an aggregator. post must execute the given function
// on the state machine's event loop. topN is the per-metric display cutoff;
// a missing or non-positive entry means no cutoff.
func NewAggregator(clock clockwork.Clock, hub Broadcaster, store ContributionStore, post func(fn func()), topN map[models.Metric]int, window time.Duration) *Aggregator {
	return &Aggregator{
		clock:   clock,
		hub:     hub,
		store:   store,
		post:    post,
		topN:    topN,
		window:  window,
		records: make(map[string]*models.ContributionRecord),
		timers:  make(map[models.Metric]clockwork.Timer),
	}
}

// Rehydrate replaces the cache with records loaded from the store, which
// must already be ordered by first contribution time.
func (a *Aggregator) Rehydrate(records []models.ContributionRecord) {
	a.Reset()
	for i := range records {
		rec := records[i]
		a.records[rec.ParticipantID] = &rec
		a.order = append(a.order, rec.ParticipantID)
	}

	log.Info().Int("participants", len(records)).Msg("leaderboard cache rehydrated")
}

// Reset discards the cache and disarms any pending debounce timer so no
// stale leaderboard is broadcast afterwards. Disarming an already-fired or
// already-disarmed timer is a no-op: the flush closure checks its handle
// against the slot and skips itself when they differ.
func (a *Aggregator) Reset() {
	a.records = make(map[string]*models.ContributionRecord)
	a.order = nil
	for metric, timer := range a.timers {
		if timer != nil {
			a.timers[metric] = nil
		}
	}
}

// Record applies one contribution event: look up or lazily create the
// participant's record, add the deltas, persist, and schedule a debounced
// re-broadcast per affected metric.
func (a *Aggregator) Record(ctx context.Context, giveawayID uuid.UUID, participantID, displayName string, bitsDelta, subsDelta int64) {
	rec, ok := a.records[participantID]
	if !ok {
		rec = &models.ContributionRecord{
			ID:                 uuid.New(),
			GiveawayID:         giveawayID,
			ParticipantID:      participantID,
			DisplayName:        displayName,
			FirstContributedAt: a.clock.Now(),
		}
		a.records[participantID] = rec
		a.order = append(a.order, participantID)

		if err := a.store.CreateContribution(ctx, rec); err != nil {
			log.Error().Err(err).Str("participant_id", participantID).Msg("failed to persist new contribution record")
		}
	}

	rec.Bits += bitsDelta
	rec.Subs += subsDelta
	if displayName != "" {
		rec.DisplayName = displayName
	}

	if err := a.store.UpdateContribution(ctx, rec); err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to persist contribution counts")
	}

	if bitsDelta > 0 {
		a.scheduleFlush(models.MetricBits)
	}
	if subsDelta > 0 {
		a.scheduleFlush(models.MetricSubs)
	}
}

// scheduleFlush arms the metric's debounce timer if none is pending. The
// window runs from the first un-flushed contribution; later events within
// the window coalesce into the same flush.
func (a *Aggregator) scheduleFlush(metric models.Metric) {
	if a.timers[metric] != nil {
		return
	}

	timer := a.clock.NewTimer(a.window)
	a.timers[metric] = timer

	go func() {
		<-timer.Chan()
		a.post(func() {
			if a.timers[metric] != timer {
				// Reset or cancel beat the fire; this flush is stale.
				return
			}
			a.timers[metric] = nil
			a.Flush(metric)
		})
	}()

	log.Debug().Str("metric", string(metric)).Dur("window", a.window).Msg("debounce timer armed")
}

// Flush recomputes the ranked list for a metric from memory and broadcasts
// it to all clients.
func (a *Aggregator) Flush(metric models.Metric) {
	entries := a.Snapshot(metric)
	a.hub.Broadcast(gateway.LeaderboardMessage(metric, entries))

	log.Debug().Str("metric", string(metric)).Int("entries", len(entries)).Msg("leaderboard broadcast")
}

// Snapshot computes the current top-N for a metric: stable sort by score
// descending, ties kept in first-contribution order, zero scores omitted.
// Top-N is a display cutoff only; every participant stays tracked.
func (a *Aggregator) Snapshot(metric models.Metric) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(a.order))
	for _, id := range a.order {
		rec := a.records[id]
		score := rec.Score(metric)
		if score <= 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			ParticipantID: rec.ParticipantID,
			Name:          rec.DisplayName,
			Score:         score,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	if n := a.topN[metric]; n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// FlushPending reports whether a debounce timer is armed for the metric.
func (a *Aggregator) FlushPending(metric models.Metric) bool {
	return a.timers[metric] != nil
}
