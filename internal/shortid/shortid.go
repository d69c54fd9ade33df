// Package shortid generates the short human-shareable identifiers used
// for orders, withdrawals and referral codes.
package shortid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns an 8-character identifier (the first segment of a v4
// UUID).
func New() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// Generate retries New until exists reports the candidate as absent.
// It returns the id and the number of collisions hit. The check-then-
// act window between the existence check and the subsequent insert is a
// known, accepted race; collisions there surface as a unique-index
// violation on insert.
func Generate(maxAttempts int, exists func(id string) (bool, error)) (string, int, error) {
	collisions := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := New()
		taken, err := exists(id)
		if err != nil {
			return "", collisions, fmt.Errorf("failed to check id uniqueness: %w", err)
		}
		if !taken {
			return id, collisions, nil
		}
		collisions++
	}
	return "", collisions, fmt.Errorf("failed to generate unique id after %d attempts", maxAttempts)
}
