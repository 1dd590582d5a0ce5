package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
	"draw-class-service/internal/infra/memory"
)

func TestWebSocketRoundFlow(t *testing.T) {
	service := newWSTestService()
	ctx := context.Background()

	classroom, teacher, err := service.CreateClassroom(ctx, "Teacher")
	if err != nil {
		t.Fatalf("create classroom: %v", err)
	}

	wsHandler := NewWSHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	base := "ws" + server.URL[len("http"):] + "/ws"

	teacherConn, _, err := websocket.DefaultDialer.Dial(base+"?classroomId="+classroom.ID+"&participantId="+teacher.ID, nil)
	if err != nil {
		t.Fatalf("teacher dial: %v", err)
	}
	defer teacherConn.Close()
	typ, payload := readNext(teacherConn, t, "snapshot")
	if typ != "snapshot" || payload["state"] != string(domain.StateLobby) {
		t.Fatalf("expected lobby snapshot first, got %s %v", typ, payload["state"])
	}

	studentConn, _, err := websocket.DefaultDialer.Dial(base+"?code="+classroom.JoinCode+"&name=Alice", nil)
	if err != nil {
		t.Fatalf("student dial: %v", err)
	}
	defer studentConn.Close()
	typ, payload = readNext(studentConn, t, "joined")
	if typ != "joined" || payload == nil {
		t.Fatalf("expected joined with payload, got %s", typ)
	}
	if typ, _ := readNext(studentConn, t, "snapshot"); typ != "snapshot" {
		t.Fatalf("expected snapshot after joined, got %s", typ)
	}

	// The teacher sees the student join as a participant event.
	typ, payload = readNext(teacherConn, t, "event")
	if typ != "event" || payload["entity"] != "participant" {
		t.Fatalf("expected participant event, got %s %v", typ, payload)
	}

	// Teacher starts the game; both sides receive the classroom update.
	if err := teacherConn.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	for _, conn := range []*websocket.Conn{teacherConn, studentConn} {
		typ, payload = readNext(conn, t, "event")
		if payload["entity"] != "classroom" {
			t.Fatalf("expected classroom event, got %v", payload)
		}
	}

	// A stale advance (wrong fromIndex) is dropped with an error message.
	if err := teacherConn.WriteJSON(map[string]any{"type": "advance", "payload": map[string]any{"fromIndex": 5}}); err != nil {
		t.Fatalf("write advance: %v", err)
	}
	if typ, _ := readNext(teacherConn, t, "error"); typ != "error" {
		t.Fatalf("expected error for stale advance, got %s", typ)
	}
}

func TestWebSocketStudentCannotStart(t *testing.T) {
	service := newWSTestService()
	classroom, _, err := service.CreateClassroom(context.Background(), "Teacher")
	if err != nil {
		t.Fatalf("create classroom: %v", err)
	}

	wsHandler := NewWSHandler(service)
	server := httptest.NewServer(http.HandlerFunc(wsHandler.ServeWS))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "?code=" + classroom.JoinCode + "&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "joined")
	readNext(conn, t, "snapshot")

	if err := conn.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if typ, _ := readNext(conn, t, "error"); typ != "error" {
		t.Fatalf("expected error, got %s", typ)
	}
}

func TestWebSocketUnknownJoinCode(t *testing.T) {
	service := newWSTestService()
	wsHandler := NewWSHandler(service)
	server := httptest.NewServer(http.HandlerFunc(wsHandler.ServeWS))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "?code=ZZZZZZ&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if typ, _ := readNext(conn, t, "error"); typ != "error" {
		t.Fatalf("expected error for unknown code, got %s", typ)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func newWSTestService() *app.ClassroomService {
	store := memory.NewClassroomStore()
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(sampleCatalog()), time.Minute)
	return app.NewClassroomService(store, catalog)
}

func sampleCatalog() []domain.Exercise {
	return []domain.Exercise{
		{
			ID:   "circle",
			Name: "Draw a Circle",
			Instructions: []domain.InstructionNode{
				{Text: "Draw one big circle"},
			},
			Rules: []domain.ValidationRule{
				{Label: "round shape", Check: "The image should contain a single round shape"},
				{Label: "closed line", Check: "The shape's outline should be closed"},
			},
		},
		{
			ID:   "square",
			Name: "Draw a Square",
			Rules: []domain.ValidationRule{
				{Label: "four corners", Check: "The image should contain a four-cornered shape"},
			},
		},
	}
}
