package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ContributionSink receives normalized contribution tuples. The core never
// sees platform-specific message shapes; whatever bridges the platform feed
// publishes the normalized form on the contribution subject.
type ContributionSink interface {
	RecordContribution(participantID, displayName string, bitsDelta, subsDelta int64)
}

// AuthSink receives owner authorize/deauthorize notifications from the
// identity collaborator.
type AuthSink interface {
	HandleAuthorized(ownerID string)
	HandleDeauthorized()
}

// Config holds NATS connection and subject configuration.
type Config struct {
	URL                 string
	ContributionSubject string
	AuthorizedSubject   string
	DeauthorizedSubject string
	MaxReconnects       int
	ReconnectWait       time.Duration
}

// DefaultConfig returns the default NATS consumer configuration.
func DefaultConfig() Config {
	return Config{
		URL:                 nats.DefaultURL,
		ContributionSubject: "giveaway.contributions",
		AuthorizedSubject:   "giveaway.auth.authorized",
		DeauthorizedSubject: "giveaway.auth.deauthorized",
		MaxReconnects:       -1,
		ReconnectWait:       2 * time.Second,
	}
}

// contributionEvent is the wire shape on the contribution subject.
type contributionEvent struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Bits          int64  `json:"bits"`
	Subs          int64  `json:"subs"`
}

// authEvent is the wire shape on the auth subjects.
type authEvent struct {
	OwnerID string `json:"owner_id"`
}

// Consumer subscribes to the collaborator subjects on core NATS. Delivery is
// deliberately at-most-once: a contribution missed while not running is
// dropped, never queued for later application.
type Consumer struct {
	nc            *nats.Conn
	config        Config
	contributions ContributionSink
	auth          AuthSink
	subs          []*nats.Subscription
}

// NewConsumer connects to NATS and prepares the consumer.
func NewConsumer(config Config, contributions ContributionSink, auth AuthSink) (*Consumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Consumer{
		nc:            nc,
		config:        config,
		contributions: contributions,
		auth:          auth,
	}, nil
}

// Start subscribes to the contribution and auth subjects.
func (c *Consumer) Start() error {
	sub, err := c.nc.Subscribe(c.config.ContributionSubject, c.handleContribution)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.config.ContributionSubject, err)
	}
	c.subs = append(c.subs, sub)

	sub, err = c.nc.Subscribe(c.config.AuthorizedSubject, c.handleAuthorized)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.config.AuthorizedSubject, err)
	}
	c.subs = append(c.subs, sub)

	sub, err = c.nc.Subscribe(c.config.DeauthorizedSubject, c.handleDeauthorized)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.config.DeauthorizedSubject, err)
	}
	c.subs = append(c.subs, sub)

	log.Info().
		Str("url", c.config.URL).
		Str("contributions", c.config.ContributionSubject).
		Msg("ingest consumer started")
	return nil
}

func (c *Consumer) handleContribution(msg *nats.Msg) {
	var event contributionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode contribution event")
		return
	}
	// Tallies only ever increase; a negative delta anywhere poisons the
	// cumulative counts, so the whole event is rejected.
	if event.ParticipantID == "" || event.Bits < 0 || event.Subs < 0 || (event.Bits == 0 && event.Subs == 0) {
		log.Warn().Str("subject", msg.Subject).Msg("ignoring malformed contribution event")
		return
	}

	c.contributions.RecordContribution(event.ParticipantID, event.DisplayName, event.Bits, event.Subs)
}

func (c *Consumer) handleAuthorized(msg *nats.Msg) {
	var event authEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.OwnerID == "" {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode authorize event")
		return
	}

	log.Info().Str("owner_id", event.OwnerID).Msg("owner authorized")
	c.auth.HandleAuthorized(event.OwnerID)
}

func (c *Consumer) handleDeauthorized(msg *nats.Msg) {
	log.Info().Msg("owner deauthorized")
	c.auth.HandleDeauthorized()
}

// Stop drains the subscriptions and closes the connection.
func (c *Consumer) Stop() {
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain subscription")
		}
	}
	c.nc.Close()
	log.Info().Msg("ingest consumer stopped")
}
