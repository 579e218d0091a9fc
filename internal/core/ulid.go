// ABOUTME: ULID generation helper using crypto/rand for monotonic, sortable IDs.
// ABOUTME: Centralizes ID creation so every entity in a spec shares one entropy source.
package core

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID seeded from crypto/rand.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), rand.Reader)
}
