// ABOUTME: Card is a kanban-style unit of spec content: idea, plan, task, decision, risk, etc.
// ABOUTME: Ordering within a lane is (order ASC, card_id ASC); order supports midpoint insertion.
package core

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Card is a single kanban card belonging to a spec's board.
type Card struct {
	CardID    ulid.ULID `json:"card_id"`
	CardType  string    `json:"card_type"`
	Title     string    `json:"title"`
	Body      *string   `json:"body,omitempty"`
	Lane      string    `json:"lane"`
	Order     float64   `json:"order"`
	Refs      []string  `json:"refs"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
}

// DefaultLane is where a card lands when no lane is specified.
const DefaultLane = "Ideas"

// NewCard creates a Card in DefaultLane with order 0.0 and empty refs.
func NewCard(cardType, title, createdBy string) Card {
	now := time.Now().UTC()
	return Card{
		CardID:    NewULID(),
		CardType:  cardType,
		Title:     title,
		Lane:      DefaultLane,
		Order:     0.0,
		Refs:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
		UpdatedBy: createdBy,
	}
}

// MidpointOrder computes the order key for a card inserted between two
// neighbors. At the edges (prev or next absent), it steps away from the
// remaining neighbor by 1.0 instead of taking a midpoint.
func MidpointOrder(prev, next *float64) float64 {
	switch {
	case prev != nil && next != nil:
		return (*prev + *next) / 2
	case prev != nil:
		return *prev + 1
	case next != nil:
		return *next - 1
	default:
		return 0
	}
}
