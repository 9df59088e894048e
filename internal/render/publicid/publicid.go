// Package publicid provides collision-resistant shareable identifiers for
// renders. Public ids appear in viewer URLs and never change once assigned.
package publicid

import (
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrMalformed is returned when a render row carries an id that does not
// have the public-id shape. Artifact keys are built from the id, so a bad
// one would produce unreachable storage paths.
var ErrMalformed = errors.New("publicid: malformed public id")

// Length of a public id. 21 characters over a 64-symbol alphabet gives
// UUID-comparable collision resistance in a URL-safe shape.
const Length = 21

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-_"

// New generates a new public id.
func New() (string, error) {
	id, err := gonanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("publicid: %w", err)
	}
	return id, nil
}

// Valid reports whether s has the shape of a public id.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
