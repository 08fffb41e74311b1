// Package store persists plans and conversation history to SQLite.
package store

import (
	"io"

	"github.com/troupelabs/troupe/pkg/models"
)

// PlanStore handles plan-document persistence.
// A successful StorePlan is durable before it returns: a subsequent GetPlan
// from the same process always observes the write.
type PlanStore interface {
	StorePlan(p *models.Plan) error
	GetPlan(sessionID string) (*models.Plan, error)
	HasPlan(sessionID string) (bool, error)
}

// MessageStore handles the append-only conversation log.
type MessageStore interface {
	StoreMessage(sessionID string, m *models.Message) error
	GetConversationHistory(sessionID string) ([]models.Message, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full persistence interface the engine works against,
// independent of the concrete SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	PlanStore
	MessageStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ PlanStore    = (*DB)(nil)
	_ MessageStore = (*DB)(nil)
)
