package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGiveawayTerminal(t *testing.T) {
	now := time.Now()

	running := Giveaway{ID: uuid.New(), DurationMs: 60000, ElapsedMs: 30000}
	assert.False(t, running.Terminal())

	cancelled := Giveaway{ID: uuid.New(), DurationMs: 60000, Cancelled: true}
	assert.True(t, cancelled.Terminal())

	ended := Giveaway{ID: uuid.New(), DurationMs: 60000, ElapsedMs: 60000, EndedAt: &now}
	assert.True(t, ended.Terminal())

	ranOut := Giveaway{ID: uuid.New(), DurationMs: 60000, ElapsedMs: 60000}
	assert.True(t, ranOut.Terminal(), "elapsed at duration is terminal even without an end marker")
}

func TestGiveawayRemainingMs(t *testing.T) {
	g := Giveaway{DurationMs: 60000, ElapsedMs: 45500}
	assert.Equal(t, int64(14500), g.RemainingMs())

	g.ElapsedMs = 61000
	assert.Equal(t, int64(0), g.RemainingMs(), "never negative")
}

func TestContributionRecordScore(t *testing.T) {
	r := ContributionRecord{Bits: 120, Subs: 3}
	assert.Equal(t, int64(120), r.Score(MetricBits))
	assert.Equal(t, int64(3), r.Score(MetricSubs))
}
