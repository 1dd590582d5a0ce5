package domain

import "time"

// Role distinguishes the classroom owner from drawing participants.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// LobbyIndex is the exercise index of a classroom with no active round.
const LobbyIndex = -1

// Classroom is the single authoritative row per session. CurrentRound is
// -1 while the game has not started (or after it finished).
type Classroom struct {
	ID              string    `json:"id"`
	JoinCode        string    `json:"joinCode"`
	CurrentRound    int       `json:"currentRound"`
	CurrentExercise string    `json:"currentExercise"`
	TestStarted     bool      `json:"testStarted"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Participant is one browser session in a classroom.
type Participant struct {
	ID          string    `json:"id"`
	ClassroomID string    `json:"classroomId"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	Finished    bool      `json:"finished"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RuleResult is the pass/fail outcome of one validation rule.
type RuleResult struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
}

// Score records one graded submission. At most one exists per
// (participant, exercise) pair; it is immutable once written.
type Score struct {
	ID            string       `json:"id"`
	ClassroomID   string       `json:"classroomId"`
	ParticipantID string       `json:"participantId"`
	ExerciseID    string       `json:"exerciseId"`
	Score         int          `json:"score"`
	Total         int          `json:"total"`
	TimeTaken     int          `json:"timeTaken"`
	Results       []RuleResult `json:"results,omitempty"`
	CompletedAt   time.Time    `json:"completedAt"`
}

// InstructionNode is one entry in an exercise's instruction list. Plain
// steps have only Text; control blocks (repeat/if) carry children.
type InstructionNode struct {
	Text     string            `json:"text"`
	Control  string            `json:"control,omitempty"`
	Children []InstructionNode `json:"children,omitempty"`
}

// ValidationRule is a natural-language predicate the grader evaluates
// against the submitted image, plus a short label for display.
type ValidationRule struct {
	Label string `json:"label"`
	Check string `json:"check"`
}

// Exercise is immutable reference data; the catalog's order defines the
// round sequence.
type Exercise struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Instructions []InstructionNode `json:"instructions"`
	Rules        []ValidationRule  `json:"validationRules"`
}

// RuleChecks returns the check texts in rule order, the form the grading
// call consumes.
func (e Exercise) RuleChecks() []string {
	checks := make([]string, len(e.Rules))
	for i, r := range e.Rules {
		checks[i] = r.Check
	}
	return checks
}

// LeaderboardEntry is one participant's cumulative standing. Entries with
// equal score and time share a Rank.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	TotalScore    int    `json:"totalScore"`
	TotalTime     int    `json:"totalTime"`
	Rank          int    `json:"rank"`
}

// Leaderboard is the ordered cumulative scoreboard for a classroom.
type Leaderboard struct {
	ClassroomID string             `json:"classroomId"`
	Entries     []LeaderboardEntry `json:"entries"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// RoundState is the coordinator's derived view of a classroom.
type RoundState string

const (
	StateLobby        RoundState = "lobby"
	StateRoundActive  RoundState = "roundActive"
	StateRoundScoring RoundState = "roundScoring"
	StateFinished     RoundState = "finished"
)
