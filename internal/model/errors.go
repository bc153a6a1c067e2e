package model

import "errors"

var (
	// ErrDuplicateID is returned when a participant id is registered twice.
	// Ids are generated per connection, so this signals a programming error.
	ErrDuplicateID = errors.New("participant id already registered")

	// ErrParticipantNotFound is returned when a participant is not connected.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrMalformedEvent is returned when an inbound frame cannot be decoded
	// into a known event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrClientClosed is returned when sending to a client whose connection
	// has already been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrSendQueueFull is returned when a client's outbound queue is full.
	// The client is closed when this happens.
	ErrSendQueueFull = errors.New("client send queue full")

	// ErrPromptRequired is returned when an assistant request has no prompt.
	ErrPromptRequired = errors.New("prompt is required")

	// ErrHubClosed is returned when joining or relaying after shutdown began.
	ErrHubClosed = errors.New("hub closed")
)
