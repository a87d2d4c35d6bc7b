package http

import (
	"net/http"

	"exam-arena-service/internal/app"
	"github.com/go-chi/chi/v5"
)

type testHandler struct {
	tests    *app.TestGenerator
	attempts *app.AttemptService
}

func (h *testHandler) RegisterRoutes(r chi.Router) {
	r.Post("/generate", h.generate)
	r.Get("/{testID}", h.get)
	r.Get("/{testID}/leaderboard", h.leaderboard)
}

func (h *testHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req app.GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	test, err := h.tests.Generate(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

func (h *testHandler) get(w http.ResponseWriter, r *http.Request) {
	test, err := h.tests.Get(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (h *testHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.attempts.TestLeaderboard(r.Context(), chi.URLParam(r, "testID"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
