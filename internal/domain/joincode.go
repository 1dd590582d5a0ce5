package domain

import "math/rand"

// joinCodeAlphabet drops 0/1/I/O so codes survive being read off a
// projector and typed by hand.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// JoinCodeLength is the fixed length of human-enterable classroom codes.
const JoinCodeLength = 6

// NewJoinCode generates a classroom join code. Uniqueness is the store's
// responsibility; callers retry on collision.
func NewJoinCode(rnd *rand.Rand) string {
	code := make([]byte, JoinCodeLength)
	for i := range code {
		code[i] = joinCodeAlphabet[rnd.Intn(len(joinCodeAlphabet))]
	}
	return string(code)
}

var (
	firstNames = []string{"Alex", "Jamie", "Taylor", "Jordan", "Morgan", "Casey", "Riley", "Quinn"}
	lastNames  = []string{"Smith", "Johnson", "Brown", "Williams", "Jones", "Miller", "Davis", "Garcia"}
)

// RandomDisplayName picks a friendly name for students who join without one.
func RandomDisplayName(rnd *rand.Rand) string {
	return firstNames[rnd.Intn(len(firstNames))] + " " + lastNames[rnd.Intn(len(lastNames))]
}
