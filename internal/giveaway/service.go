package giveaway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"giveaway-overlay-backend/internal/gateway"
	"giveaway-overlay-backend/internal/leaderboard"
	"giveaway-overlay-backend/internal/models"
)

// Broadcaster is what the state machine needs from the hub.
type Broadcaster interface {
	Broadcast(msg gateway.Message)
	SendTo(c *gateway.Client, msg gateway.Message)
}

// Config holds the timing and display knobs of the service.
type Config struct {
	TickInterval    time.Duration         // wall-clock tick granularity
	CheckpointEvery time.Duration         // how often a running giveaway is persisted
	DebounceWindow  time.Duration         // leaderboard coalescing window
	LeaderboardTopN map[models.Metric]int // display cutoff, per metric
}

// DefaultConfig returns the production timing configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		CheckpointEvery: 10 * time.Second,
		DebounceWindow:  time.Second,
		LeaderboardTopN: map[models.Metric]int{
			models.MetricBits: 10,
			models.MetricSubs: 10,
		},
	}
}

// Service owns the single authoritative giveaway record. Every mutation
// (operator commands, contribution events, tick fires, debounce flushes,
// client joins, auth notifications) runs as a closure on one event loop, so
// no two mutations of the giveaway or the leaderboard cache ever interleave.
type Service struct {
	clock clockwork.Clock
	store Store
	hub   Broadcaster
	agg   *leaderboard.Aggregator
	cfg   Config

	cmdCh chan func()
	done  chan struct{}
	ctx   context.Context

	ownerID string
	current *models.Giveaway

	// Tick scheduler state. tickTimer is nil while not ticking; the handle
	// doubles as the staleness guard for fires that race a pause/cancel.
	tickTimer        clockwork.Timer
	lastTickAt       time.Time
	lastCheckpointAt time.Time
}

// NewService creates the state machine. Run must be called before any
// command is issued.
func NewService(clock clockwork.Clock, store Store, hub Broadcaster, cfg Config) *Service {
	s := &Service{
		clock: clock,
		store: store,
		hub:   hub,
		cfg:   cfg,
		cmdCh: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	s.agg = leaderboard.NewAggregator(clock, hub, store, s.post, cfg.LeaderboardTopN, cfg.DebounceWindow)
	return s
}

// Run executes the event loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.ctx = ctx
	defer close(s.done)

	log.Info().Msg("giveaway service started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("giveaway service shutting down")
			return
		case fn := <-s.cmdCh:
			fn()
		}
	}
}

// post queues fn for execution on the event loop.
func (s *Service) post(fn func()) {
	select {
	case s.cmdCh <- fn:
	case <-s.done:
	}
}

// call runs fn on the event loop and waits for its result.
func (s *Service) call(fn func() error) error {
	errCh := make(chan error, 1)
	s.post(func() { errCh <- fn() })
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return ErrShuttingDown
	}
}

// Start creates a new giveaway and begins ticking. Fails with
// ErrGiveawayActive when a non-terminal giveaway already exists.
func (s *Service) Start(ownerID string, durationMs int64) error {
	return s.call(func() error { return s.start(ownerID, durationMs) })
}

// Pause freezes the clock and the leaderboard. No-op unless running.
func (s *Service) Pause() error {
	return s.call(s.pause)
}

// Resume continues a paused giveaway, re-anchoring the tick clock to now so
// time spent paused never counts as elapsed.
func (s *Service) Resume() error {
	return s.call(s.resume)
}

// Cancel terminates the current giveaway. No-op when none is active.
func (s *Service) Cancel() error {
	return s.call(s.cancel)
}

// Current returns a copy of the authoritative giveaway record, or nil when
// idle. Runs on the event loop like every other read of owned state.
func (s *Service) Current() *models.Giveaway {
	var snapshot *models.Giveaway
	s.call(func() error {
		if s.current != nil {
			g := *s.current
			snapshot = &g
		}
		return nil
	})
	return snapshot
}

// RecordContribution applies one normalized contribution event.
// Fire-and-forget: rejections while not running are logged and dropped.
func (s *Service) RecordContribution(participantID, displayName string, bitsDelta, subsDelta int64) {
	s.post(func() { s.recordContribution(participantID, displayName, bitsDelta, subsDelta) })
}

// HandleAuthorized runs recovery for the newly authorized owner.
func (s *Service) HandleAuthorized(ownerID string) {
	s.post(func() { s.recover(ownerID) })
}

// HandleDeauthorized pauses and unloads the current giveaway without
// cancelling it, so the same owner can resume after reauthorizing.
func (s *Service) HandleDeauthorized() {
	s.post(s.deauthorize)
}

// HandleClientJoin pushes the current snapshot and both leaderboards to a
// newly admitted client. Joins never wait for a tick or a debounce flush.
func (s *Service) HandleClientJoin(c *gateway.Client, role gateway.Role) {
	s.post(func() {
		s.hub.SendTo(c, gateway.StateMessage(gateway.MessageGiveawayInfo, s.current))
		for _, metric := range models.Metrics {
			s.hub.SendTo(c, gateway.LeaderboardMessage(metric, s.agg.Snapshot(metric)))
		}
		log.Debug().Str("client_id", c.ID).Str("role", string(role)).Msg("snapshot pushed to joining client")
	})
}

// HandleClientLeave is invoked once per role membership when a client
// disconnects. Nothing to tear down server-side; the hub already dropped it.
func (s *Service) HandleClientLeave(c *gateway.Client, role gateway.Role) {
	log.Debug().Str("client_id", c.ID).Str("role", string(role)).Msg("client left")
}

func (s *Service) start(ownerID string, durationMs int64) error {
	if s.current != nil {
		log.Warn().
			Str("giveaway_id", s.current.ID.String()).
			Msg("start rejected: a giveaway is already active")
		return ErrGiveawayActive
	}

	g := &models.Giveaway{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		StartedAt:  s.clock.Now(),
		DurationMs: durationMs,
	}

	if err := s.store.CreateGiveaway(s.ctx, g); err != nil {
		log.Error().Err(err).Str("giveaway_id", g.ID.String()).Msg("failed to persist new giveaway")
	}

	s.current = g
	s.ownerID = ownerID
	s.agg.Reset()

	log.Info().
		Str("giveaway_id", g.ID.String()).
		Str("owner_id", ownerID).
		Int64("duration_ms", durationMs).
		Msg("giveaway started")

	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, s.current))
	s.startTicking()
	return nil
}

func (s *Service) pause() error {
	if s.current == nil || s.current.Paused {
		return nil
	}

	s.current.Paused = true
	s.stopTicking()
	s.persist()

	log.Info().Str("giveaway_id", s.current.ID.String()).Msg("giveaway paused")
	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, s.current))
	return nil
}

func (s *Service) resume() error {
	if s.current == nil || !s.current.Paused {
		return nil
	}

	s.current.Paused = false
	s.persist()

	log.Info().
		Str("giveaway_id", s.current.ID.String()).
		Int64("elapsed_ms", s.current.ElapsedMs).
		Msg("giveaway resumed")

	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, s.current))
	s.startTicking()
	return nil
}

func (s *Service) cancel() error {
	if s.current == nil {
		return nil
	}

	s.stopTicking()
	now := s.clock.Now()
	s.current.Cancelled = true
	s.current.EndedAt = &now
	s.persist()

	log.Info().Str("giveaway_id", s.current.ID.String()).Msg("giveaway cancelled")

	s.current = nil
	s.agg.Reset()

	// The cancel's own broadcasts are authoritative: the empty leaderboards
	// must be the last leaderboard messages clients receive.
	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, nil))
	for _, metric := range models.Metrics {
		s.hub.Broadcast(gateway.LeaderboardMessage(metric, nil))
	}
	return nil
}

func (s *Service) recordContribution(participantID, displayName string, bitsDelta, subsDelta int64) {
	if s.current == nil || s.current.Paused {
		log.Info().
			Err(ErrNotAccepting).
			Str("participant_id", participantID).
			Int64("bits", bitsDelta).
			Int64("subs", subsDelta).
			Msg("contribution dropped")
		return
	}

	s.agg.Record(s.ctx, s.current.ID, participantID, displayName, bitsDelta, subsDelta)
}

// recover reconstructs in-memory state from the store after the owner
// authorizes. A restarted process never silently resumes a countdown: the
// adopted giveaway is forced paused until the operator issues resume.
// In-memory state always wins over the checkpoint row, so a re-authorize
// while a giveaway is already loaded changes nothing.
func (s *Service) recover(ownerID string) {
	if s.current != nil {
		log.Info().
			Str("giveaway_id", s.current.ID.String()).
			Str("owner_id", ownerID).
			Msg("recovery skipped: a giveaway is already loaded")
		return
	}
	s.ownerID = ownerID

	g, err := s.store.CurrentGiveaway(s.ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("recovery: failed to load current giveaway")
		return
	}
	if g == nil {
		log.Info().Str("owner_id", ownerID).Msg("recovery: no giveaway to adopt")
		return
	}
	if g.ElapsedMs >= g.DurationMs {
		log.Info().Str("giveaway_id", g.ID.String()).Msg("recovery: stored giveaway already ran out")
		return
	}

	g.Paused = true
	s.current = g
	s.persist()

	records, err := s.store.ListContributions(s.ctx, g.ID)
	if err != nil {
		log.Error().Err(err).Str("giveaway_id", g.ID.String()).Msg("recovery: failed to load contributions")
	} else {
		s.agg.Rehydrate(records)
	}

	log.Info().
		Str("giveaway_id", g.ID.String()).
		Int64("elapsed_ms", g.ElapsedMs).
		Int("participants", len(records)).
		Msg("recovery: giveaway adopted, paused until resume")

	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, s.current))
}

func (s *Service) deauthorize() {
	s.stopTicking()

	if s.current != nil {
		s.current.Paused = true
		s.persist()
		log.Info().Str("giveaway_id", s.current.ID.String()).Msg("owner deauthorized, giveaway paused and unloaded")
	}

	s.current = nil
	s.ownerID = ""
	s.agg.Reset()

	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, nil))
	for _, metric := range models.Metrics {
		s.hub.Broadcast(gateway.LeaderboardMessage(metric, nil))
	}
}

// persist checkpoints the current giveaway row. Failures are logged only:
// the in-memory state stays authoritative and the next checkpoint retries,
// accepting at most one checkpoint interval of durability loss on crash.
func (s *Service) persist() {
	if s.current == nil {
		return
	}
	if err := s.store.UpdateGiveaway(s.ctx, s.current); err != nil {
		log.Error().Err(err).Str("giveaway_id", s.current.ID.String()).Msg("failed to checkpoint giveaway")
	}
}
