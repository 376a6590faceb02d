package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultGenerationLimit is the monthly generation allowance given to new users.
const DefaultGenerationLimit = 5

// User represents an account together with its embedded monthly usage counter.
type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name"`
	UsageMonth      time.Time `json:"usage_month"` // first day of the accounting month, UTC
	GenerationsUsed int       `json:"generations_used"`
	GenerationLimit int       `json:"generation_limit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MasterResume is the user's source résumé that every generation starts from.
type MasterResume struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
