package http

import (
	"encoding/json"
	"net/http"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// ClassroomHandler covers the non-streaming classroom endpoints: the
// teacher creates a classroom here and then drives it over the websocket.
type ClassroomHandler struct {
	service *app.ClassroomService
}

func NewClassroomHandler(service *app.ClassroomService) *ClassroomHandler {
	return &ClassroomHandler{service: service}
}

type createClassroomRequest struct {
	TeacherName string `json:"teacherName"`
}

type createClassroomResponse struct {
	Classroom domain.Classroom   `json:"classroom"`
	Teacher   domain.Participant `json:"teacher"`
}

func (h *ClassroomHandler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req createClassroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeacherName == "" {
		req.TeacherName = "Teacher"
	}
	classroom, teacher, err := h.service.CreateClassroom(r.Context(), req.TeacherName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create classroom")
		return
	}
	writeJSON(w, http.StatusCreated, createClassroomResponse{Classroom: classroom, Teacher: teacher})
}

func (h *ClassroomHandler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	classroomID := r.URL.Query().Get("classroomId")
	if classroomID == "" {
		writeError(w, http.StatusBadRequest, "missing classroomId")
		return
	}
	leaderboard, err := h.service.Leaderboard(r.Context(), classroomID)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboard)
}
