package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// WSHandler wires websocket connections into the classroom change stream.
// Students connect with a join code and become participants; the teacher
// connects with the classroom id and drives the round lifecycle.
type WSHandler struct {
	service  *app.ClassroomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ClassroomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type advancePayload struct {
	FromIndex int `json:"fromIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinedPayload struct {
	Classroom   domain.Classroom   `json:"classroom"`
	Participant domain.Participant `json:"participant"`
}

// ServeWS upgrades the request and streams classroom state. Every
// connection receives a full snapshot before incremental events, so a
// reconnecting client never has to trust its stale local state.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	classroomID := r.URL.Query().Get("classroomId")
	participantID := r.URL.Query().Get("participantId")
	name := r.URL.Query().Get("name")
	if code == "" && classroomID == "" {
		http.Error(w, "missing code or classroomId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var joined *joinedPayload
	if code != "" {
		classroom, participant, err := h.service.Join(ctx, code, name)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		classroomID = classroom.ID
		participantID = participant.ID
		joined = &joinedPayload{Classroom: classroom, Participant: participant}
	}

	snapshot, updates, cancel, err := h.service.Subscribe(ctx, classroomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	isTeacher := participantRole(snapshot.Participants, participantID) == domain.RoleTeacher

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if joined != nil {
		send <- outboundMessage[any]{Type: "joined", Payload: *joined}
	}
	send <- outboundMessage[any]{Type: "snapshot", Payload: snapshot}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			if !isTeacher {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "only the teacher can start"}}
				continue
			}
			if _, err := h.service.StartGame(ctx, classroomID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: transitionMessage(err)}}
			}
		case "advance":
			if !isTeacher {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "only the teacher can advance"}}
				continue
			}
			var payload advancePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid advance payload"}}
				continue
			}
			if _, err := h.service.AdvanceRound(ctx, classroomID, payload.FromIndex); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: transitionMessage(err)}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func participantRole(participants []domain.Participant, id string) domain.Role {
	for _, p := range participants {
		if p.ID == id {
			return p.Role
		}
	}
	return ""
}

func transitionMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidTransition) {
		return "round already moved on"
	}
	return err.Error()
}
