package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

type fakeGrader struct {
	verdicts []bool
	err      error
	calls    int
}

func (g *fakeGrader) GradeDrawing(_ context.Context, _ []byte, _ string, rules []string) ([]bool, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.verdicts, nil
}

func TestSubmitRecordsScore(t *testing.T) {
	service, classroom, student := newSubmitFixture(t)
	grader := &fakeGrader{verdicts: []bool{true, false}}
	handler := NewSubmitHandler(service, grader)

	resp := doSubmit(t, handler, classroom.ID, student.ID, "15")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body submitResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ExerciseID != "circle" || body.Score != 1 || body.Total != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.ValidationResults) != 2 || !body.ValidationResults[0].Passed || body.ValidationResults[1].Passed {
		t.Fatalf("unexpected rule results %+v", body.ValidationResults)
	}

	complete, err := service.IsRoundComplete(context.Background(), classroom.ID)
	if err != nil || !complete {
		t.Fatalf("expected round complete, got %v %v", complete, err)
	}
}

func TestSubmitDuplicateIsBenign(t *testing.T) {
	service, classroom, student := newSubmitFixture(t)
	grader := &fakeGrader{verdicts: []bool{true, true}}
	handler := NewSubmitHandler(service, grader)

	if resp := doSubmit(t, handler, classroom.ID, student.ID, "10"); resp.Code != http.StatusOK {
		t.Fatalf("first submit: %d", resp.Code)
	}
	resp := doSubmit(t, handler, classroom.ID, student.ID, "20")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected duplicate to be a 200 no-op, got %d", resp.Code)
	}
	var body submitResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if !body.AlreadySubmitted {
		t.Fatalf("expected alreadySubmitted, got %+v", body)
	}

	lb, err := service.Leaderboard(context.Background(), classroom.ID)
	if err != nil || len(lb.Entries) != 1 {
		t.Fatalf("leaderboard: %+v %v", lb, err)
	}
	if lb.Entries[0].TotalTime != 10 {
		t.Fatalf("expected first submission to stand, got %+v", lb.Entries[0])
	}
}

func TestSubmitGradingFailureWritesNothing(t *testing.T) {
	service, classroom, student := newSubmitFixture(t)
	grader := &fakeGrader{err: fmt.Errorf("call: %w", domain.ErrGradingUnavailable)}
	handler := NewSubmitHandler(service, grader)

	resp := doSubmit(t, handler, classroom.ID, student.ID, "10")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	complete, _ := service.IsRoundComplete(context.Background(), classroom.ID)
	if complete {
		t.Fatalf("expected no score recorded on grading failure")
	}

	// The student retries after the provider recovers.
	grader.err = nil
	grader.verdicts = []bool{true, true}
	if resp := doSubmit(t, handler, classroom.ID, student.ID, "30"); resp.Code != http.StatusOK {
		t.Fatalf("retry: %d", resp.Code)
	}
	complete, _ = service.IsRoundComplete(context.Background(), classroom.ID)
	if !complete {
		t.Fatalf("expected round complete after retry")
	}
}

func TestSubmitBeforeRoundStarts(t *testing.T) {
	service := newWSTestService()
	classroom, _, _ := service.CreateClassroom(context.Background(), "Teacher")
	_, student, _ := service.Join(context.Background(), classroom.JoinCode, "Alice")

	handler := NewSubmitHandler(service, &fakeGrader{verdicts: []bool{true}})
	resp := doSubmit(t, handler, classroom.ID, student.ID, "10")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before round start, got %d", resp.Code)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	service, classroom, student := newSubmitFixture(t)
	handler := NewSubmitHandler(service, &fakeGrader{verdicts: []bool{true, true}})

	// wrong method
	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	rec := httptest.NewRecorder()
	handler.ServeSubmit(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	// missing participant
	resp := doSubmit(t, handler, classroom.ID, "", "10")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	// unknown participant
	resp = doSubmit(t, handler, classroom.ID, "nobody", "10")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	_ = student
}

func newSubmitFixture(t *testing.T) (*app.ClassroomService, domain.Classroom, domain.Participant) {
	t.Helper()
	service := newWSTestService()
	ctx := context.Background()
	classroom, _, err := service.CreateClassroom(ctx, "Teacher")
	if err != nil {
		t.Fatalf("create classroom: %v", err)
	}
	_, student, err := service.Join(ctx, classroom.JoinCode, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartGame(ctx, classroom.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	return service, classroom, student
}

func doSubmit(t *testing.T, handler *SubmitHandler, classroomID, participantID, timeTaken string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("classroomId", classroomID)
	if participantID != "" {
		_ = writer.WriteField("participantId", participantID)
	}
	_ = writer.WriteField("timeTaken", timeTaken)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="drawing.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("fake-png-bytes")); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submissions", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeSubmit(rec, req)
	return rec
}
