package http

import (
	"net/http"

	"exam-arena-service/internal/app"
	"github.com/go-chi/chi/v5"
)

type roomHandler struct {
	rooms *app.RoomService
}

func (h *roomHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listPublic)
	r.Post("/", h.create)
	r.Get("/{code}", h.get)
	r.Patch("/{code}", h.update)
	r.Post("/{code}/join", h.join)
	r.Post("/{code}/leave", h.leave)
	r.Post("/{code}/start", h.start)
	r.Post("/{code}/end", h.end)
	r.Post("/{code}/kick/{userID}", h.kick)
	r.Get("/{code}/questions", h.questions)
	r.Get("/{code}/leaderboard", h.leaderboard)
	r.Get("/{code}/review", h.review)
	r.Get("/{code}/unattempted", h.unattempted)
}

type joinRequest struct {
	Password string `json:"password"`
}

func (h *roomHandler) listPublic(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListPublic(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

func (h *roomHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.rooms.Create(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *roomHandler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.Get(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) update(w http.ResponseWriter, r *http.Request) {
	var req app.CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.rooms.Update(r.Context(), principal(r), chi.URLParam(r, "code"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.rooms.Join(r.Context(), principal(r), chi.URLParam(r, "code"), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) leave(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.Leave(r.Context(), principal(r), chi.URLParam(r, "code")); err != nil {
		writeError(w, err)
		return
	}
	writeDetail(w, http.StatusOK, "left the room")
}

func (h *roomHandler) start(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.Start(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) end(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.End(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) kick(w http.ResponseWriter, r *http.Request) {
	err := h.rooms.Kick(r.Context(), principal(r), chi.URLParam(r, "code"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDetail(w, http.StatusOK, "participant removed")
}

func (h *roomHandler) questions(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.Questions(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.Leaderboard(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *roomHandler) review(w http.ResponseWriter, r *http.Request) {
	items, err := h.rooms.Review(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": items})
}

func (h *roomHandler) unattempted(w http.ResponseWriter, r *http.Request) {
	questions, err := h.rooms.Unattempted(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(questions),
		"questions": questions,
	})
}
