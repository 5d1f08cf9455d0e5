package entity

import (
	"time"

	"github.com/google/uuid"
)

// SearchRun is the archived outcome of one completed discovery run.
type SearchRun struct {
	ID            uuid.UUID   `json:"id"`
	CorrelationID string      `json:"correlationId"`
	PrincipalID   string      `json:"principalId"`
	Brief         SearchBrief `json:"brief"`
	Contacts      []Contact   `json:"contacts"`
	Logs          []string    `json:"logs"`
	CompletedAt   time.Time   `json:"completedAt"`
}
