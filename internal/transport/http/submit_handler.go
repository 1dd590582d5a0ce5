package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// maxImageBytes caps submitted drawings; canvas exports stay well under this.
const maxImageBytes = 8 << 20

// Grader scores an image against the active exercise's rule checks.
type Grader interface {
	GradeDrawing(ctx context.Context, image []byte, contentType string, rules []string) ([]bool, error)
}

// SubmitHandler accepts multipart drawing submissions, grades them, and
// records the score. Grading failures record nothing so the student can
// retry.
type SubmitHandler struct {
	service *app.ClassroomService
	grader  Grader
}

func NewSubmitHandler(service *app.ClassroomService, grader Grader) *SubmitHandler {
	return &SubmitHandler{service: service, grader: grader}
}

type submitResponse struct {
	ExerciseID        string              `json:"exerciseId"`
	Score             int                 `json:"score"`
	Total             int                 `json:"total"`
	ValidationResults []domain.RuleResult `json:"validationResults"`
	AlreadySubmitted  bool                `json:"alreadySubmitted,omitempty"`
}

func (h *SubmitHandler) ServeSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	classroomID := r.FormValue("classroomId")
	participantID := r.FormValue("participantId")
	if classroomID == "" || participantID == "" {
		writeError(w, http.StatusBadRequest, "missing classroomId or participantId")
		return
	}
	timeTaken, err := strconv.Atoi(r.FormValue("timeTaken"))
	if err != nil || timeTaken < 0 {
		writeError(w, http.StatusBadRequest, "invalid timeTaken")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType != "image/png" && contentType != "image/jpeg" {
		writeError(w, http.StatusBadRequest, "image must be png or jpeg")
		return
	}
	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}

	ctx := r.Context()
	exercise, err := h.service.CurrentExercise(ctx, classroomID)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	verdicts, err := h.grader.GradeDrawing(ctx, image, contentType, exercise.RuleChecks())
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	results := make([]domain.RuleResult, len(exercise.Rules))
	for i, rule := range exercise.Rules {
		passed := i < len(verdicts) && verdicts[i]
		results[i] = domain.RuleResult{Rule: rule.Label, Passed: passed}
	}

	score, err := h.service.RecordSubmission(ctx, classroomID, participantID, exercise.ID, results, timeTaken)
	if errors.Is(err, domain.ErrDuplicateSubmission) {
		// benign no-op: the first submission stands
		writeJSON(w, http.StatusOK, submitResponse{ExerciseID: exercise.ID, AlreadySubmitted: true})
		return
	}
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		ExerciseID:        score.ExerciseID,
		Score:             score.Score,
		Total:             score.Total,
		ValidationResults: score.Results,
	})
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrClassroomNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrExerciseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStaleSubmission):
		writeError(w, http.StatusConflict, "round is not accepting submissions")
	case errors.Is(err, domain.ErrGradingUnavailable),
		errors.Is(err, domain.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, "grading failed, please retry")
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Printf("store unavailable: %v", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	default:
		log.Printf("submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
