package domain

import "errors"

var (
	// ErrClassroomNotFound is returned for unknown classroom ids and join codes.
	ErrClassroomNotFound = errors.New("classroom not found")
	// ErrParticipantNotFound is returned when a participant id does not belong to the classroom.
	ErrParticipantNotFound = errors.New("participant not found in classroom")
	// ErrExerciseNotFound indicates a catalog index or exercise id out of range.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrInvalidTransition indicates a round state machine misuse, including
	// a CAS advance whose expected index no longer matches the stored one.
	ErrInvalidTransition = errors.New("invalid round transition")
	// ErrDuplicateSubmission is returned when a (participant, exercise) pair
	// already has a score. The first score is left untouched.
	ErrDuplicateSubmission = errors.New("submission already recorded")
	// ErrStaleSubmission indicates a grading result arrived for an exercise
	// that is no longer the active round; the result is discarded.
	ErrStaleSubmission = errors.New("submission is for a past round")
	// ErrGradingUnavailable covers network, provider, and timeout failures
	// from the vision service. Nothing is persisted.
	ErrGradingUnavailable = errors.New("grading service unavailable")
	// ErrMalformedResponse indicates the vision service answered but no
	// pass/fail verdicts could be parsed out of it.
	ErrMalformedResponse = errors.New("could not parse grading response")
	// ErrStoreUnavailable wraps backing-store failures that are not a
	// not-found or conflict condition. Callers surface it with a retry
	// affordance.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
