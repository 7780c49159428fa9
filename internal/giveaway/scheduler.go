package giveaway

import (
	"time"

	"github.com/rs/zerolog/log"

	"giveaway-overlay-backend/internal/gateway"
)

// The tick scheduler advances a running giveaway's elapsed time in real
// time, detects natural completion, and checkpoints periodically so an
// unexpected exit loses at most one checkpoint interval of progress.
//
// It never uses a repeating interval: every tick arms a freshly computed
// one-shot timer, so pause/resume and process jitter cannot accumulate skew.

// startTicking anchors the tick clock to now and arms the first timer.
// Called on start and on resume; elapsed time accrued while paused never
// advances because the anchor is re-set here.
func (s *Service) startTicking() {
	now := s.clock.Now()
	s.lastTickAt = now
	s.lastCheckpointAt = now
	s.scheduleTick()
}

// stopTicking disarms the pending tick. Idempotent: a fire already in
// flight checks its handle against the slot and skips itself.
func (s *Service) stopTicking() {
	s.tickTimer = nil
}

// scheduleTick arms a one-shot timer for min(tick interval, remaining).
func (s *Service) scheduleTick() {
	delay := s.cfg.TickInterval
	if remaining := time.Duration(s.current.RemainingMs()) * time.Millisecond; remaining < delay {
		delay = remaining
	}

	timer := s.clock.NewTimer(delay)
	s.tickTimer = timer

	go func() {
		<-timer.Chan()
		s.post(func() {
			if s.tickTimer != timer {
				// Paused, cancelled, or rescheduled since this was armed.
				return
			}
			s.tickTimer = nil
			s.handleTick()
		})
	}()

	log.Debug().Dur("delay", delay).Msg("tick scheduled")
}

// handleTick advances elapsed time by the measured wall-clock delta rather
// than the nominal interval, so timer drift never skews the countdown.
func (s *Service) handleTick() {
	now := s.clock.Now()
	delta := now.Sub(s.lastTickAt)
	s.lastTickAt = now
	s.current.ElapsedMs += delta.Milliseconds()

	if s.current.ElapsedMs >= s.current.DurationMs {
		s.finish(now)
		return
	}

	// Every tick is broadcast: this is the heartbeat clients render the
	// countdown from.
	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayTick, s.current))

	if now.Sub(s.lastCheckpointAt) >= s.cfg.CheckpointEvery {
		s.persist()
		s.lastCheckpointAt = now
	}

	s.scheduleTick()
}

// finish ends the giveaway by duration exhaustion. The transition is atomic
// with contribution acceptance: once this runs, the giveaway is gone from
// memory and later contributions are dropped as not-accepting.
func (s *Service) finish(now time.Time) {
	s.current.ElapsedMs = s.current.DurationMs
	s.current.EndedAt = &now
	s.persist()

	log.Info().Str("giveaway_id", s.current.ID.String()).Msg("giveaway ended")

	s.current = nil
	s.agg.Reset()
	s.hub.Broadcast(gateway.StateMessage(gateway.MessageGiveawayInfo, nil))
}
