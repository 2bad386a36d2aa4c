package task

import "math/rand"

// IDGenerator mints task identifiers. Collisions are improbable at this
// length but not impossible; the gateway verifies against the store and
// regenerates on a duplicate instead of trusting probability alone.
type IDGenerator interface {
	NewID() string
}

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength   = 10
)

// RandomIDs generates 10-character alphanumeric codes.
type RandomIDs struct{}

func (RandomIDs) NewID() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}
