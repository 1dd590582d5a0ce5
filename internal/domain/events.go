package domain

// EntityType names the table a change event refers to.
type EntityType string

const (
	EntityClassroom   EntityType = "classroom"
	EntityParticipant EntityType = "participant"
	EntityScore       EntityType = "score"
)

// EventKind is the patch operation a client applies to its local state.
type EventKind string

const (
	KindUpsert EventKind = "upsert"
	KindDelete EventKind = "delete"
)

// Event is one classroom-scoped change notification. Exactly one of the
// payload pointers matching Entity is set. Clients merge events into
// id-keyed local state; an event is never a full snapshot.
type Event struct {
	Entity      EntityType   `json:"entity"`
	Kind        EventKind    `json:"kind"`
	Classroom   *Classroom   `json:"classroom,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	Score       *Score       `json:"score,omitempty"`
}

// Key identifies the entity row the event touches. Events sharing a key
// are delivered in commit order.
func (e Event) Key() string {
	switch e.Entity {
	case EntityClassroom:
		if e.Classroom != nil {
			return string(e.Entity) + ":" + e.Classroom.ID
		}
	case EntityParticipant:
		if e.Participant != nil {
			return string(e.Entity) + ":" + e.Participant.ID
		}
	case EntityScore:
		if e.Score != nil {
			return string(e.Entity) + ":" + e.Score.ID
		}
	}
	return string(e.Entity)
}

// Snapshot is the full classroom state a subscriber receives before any
// incremental events, covering whatever it missed while disconnected.
// State and RoundIndex carry the derived round lifecycle so clients do
// not have to recompute it from the raw rows.
type Snapshot struct {
	Classroom    Classroom     `json:"classroom"`
	Participants []Participant `json:"participants"`
	Scores       []Score       `json:"scores"`
	State        RoundState    `json:"state"`
	RoundIndex   int           `json:"roundIndex"`
}
