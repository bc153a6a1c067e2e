package model

import "time"

// Participant is one connected client session. It lives exactly as long as
// the connection that created it.
type Participant struct {
	ID       string    `json:"id"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ParticipantRecord is one row of the connection audit log.
type ParticipantRecord struct {
	ID           string     `json:"id"`
	JoinedAt     time.Time  `json:"joinedAt"`
	LeftAt       *time.Time `json:"leftAt,omitempty"`
	MessagesSent int        `json:"messagesSent"`
}
