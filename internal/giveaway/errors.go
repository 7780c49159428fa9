package giveaway

import "errors"

var (
	// ErrGiveawayActive is returned by Start when a non-terminal giveaway
	// already exists. The command surface reports it as a failed ack only.
	ErrGiveawayActive = errors.New("a giveaway is already active")

	// ErrNotAccepting marks a contribution that arrived while no giveaway
	// was running. Such events are logged and dropped, never queued.
	ErrNotAccepting = errors.New("no running giveaway is accepting contributions")

	// ErrShuttingDown is returned when a command arrives after the event
	// loop has stopped.
	ErrShuttingDown = errors.New("giveaway service is shutting down")
)
