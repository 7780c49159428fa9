package ingest

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	contributions []contributionEvent
	authorized    []string
	deauthorized  int
}

func (s *recordingSink) RecordContribution(participantID, displayName string, bitsDelta, subsDelta int64) {
	s.contributions = append(s.contributions, contributionEvent{
		ParticipantID: participantID,
		DisplayName:   displayName,
		Bits:          bitsDelta,
		Subs:          subsDelta,
	})
}

func (s *recordingSink) HandleAuthorized(ownerID string) { s.authorized = append(s.authorized, ownerID) }
func (s *recordingSink) HandleDeauthorized()             { s.deauthorized++ }

func newTestConsumer(sink *recordingSink) *Consumer {
	return &Consumer{
		config:        DefaultConfig(),
		contributions: sink,
		auth:          sink,
	}
}

func msg(subject, data string) *nats.Msg {
	return &nats.Msg{Subject: subject, Data: []byte(data)}
}

func TestContributionEventForwarded(t *testing.T) {
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	c.handleContribution(msg("giveaway.contributions", `{"participant_id":"p1","display_name":"Alice","bits":50,"subs":0}`))

	require.Len(t, sink.contributions, 1)
	assert.Equal(t, "p1", sink.contributions[0].ParticipantID)
	assert.Equal(t, "Alice", sink.contributions[0].DisplayName)
	assert.Equal(t, int64(50), sink.contributions[0].Bits)
	assert.Equal(t, int64(0), sink.contributions[0].Subs)
}

func TestMalformedContributionEventsDropped(t *testing.T) {
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	for _, data := range []string{
		`not json`,
		`{"participant_id":"","bits":50}`,
		`{"participant_id":"p1","bits":0,"subs":0}`,
		`{"participant_id":"p1","bits":-5,"subs":-1}`,
		`{"participant_id":"p1","bits":-500,"subs":1}`,
		`{"participant_id":"p1","bits":10,"subs":-1}`,
	} {
		c.handleContribution(msg("giveaway.contributions", data))
	}

	assert.Empty(t, sink.contributions)
}

func TestAuthorizedEventForwarded(t *testing.T) {
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	c.handleAuthorized(msg("giveaway.auth.authorized", `{"owner_id":"owner-1"}`))
	c.handleAuthorized(msg("giveaway.auth.authorized", `{"owner_id":""}`))
	c.handleAuthorized(msg("giveaway.auth.authorized", `garbage`))

	assert.Equal(t, []string{"owner-1"}, sink.authorized)
}

func TestDeauthorizedEventForwarded(t *testing.T) {
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	c.handleDeauthorized(msg("giveaway.auth.deauthorized", `{}`))

	assert.Equal(t, 1, sink.deauthorized)
}
