package http

import (
	"net/http"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

type attemptHandler struct {
	attempts *app.AttemptService
	rooms    *app.RoomService
}

func (h *attemptHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.start)
	r.Post("/submit", h.submitRoomAnswer)
	r.Get("/{attemptID}", h.get)
	r.Post("/{attemptID}/answers", h.answer)
	r.Post("/{attemptID}/submit", h.submit)
	r.Get("/{attemptID}/unattempted", h.unattempted)
}

type startAttemptRequest struct {
	TestID string `json:"test_id"`
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

func (h *attemptHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	attempt, err := h.attempts.Start(r.Context(), principal(r), req.TestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.AttemptView{Attempt: attempt, Status: attempt.Status(), Answers: []domain.Answer{}})
}

func (h *attemptHandler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.attempts.Get(r.Context(), principal(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *attemptHandler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.QuestionID == "" {
		writeError(w, domain.Validationf("question_id is required"))
		return
	}
	ans, err := h.attempts.Answer(r.Context(), principal(r), chi.URLParam(r, "attemptID"), req.QuestionID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *attemptHandler) submit(w http.ResponseWriter, r *http.Request) {
	result, err := h.attempts.Submit(r.Context(), principal(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *attemptHandler) unattempted(w http.ResponseWriter, r *http.Request) {
	questions, err := h.attempts.Unattempted(r.Context(), principal(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(questions),
		"questions": questions,
	})
}

// submitRoomAnswer records a room answer; the room code travels in the body.
func (h *attemptHandler) submitRoomAnswer(w http.ResponseWriter, r *http.Request) {
	var req app.RoomAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RoomCode == "" || req.RoomQuestionID == "" {
		writeError(w, domain.Validationf("room_code and room_question_id are required"))
		return
	}
	result, err := h.rooms.SubmitAnswer(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
