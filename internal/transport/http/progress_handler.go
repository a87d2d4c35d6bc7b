package http

import (
	"net/http"

	"exam-arena-service/internal/app"
	"github.com/go-chi/chi/v5"
)

// progressHandler serves gamification and referral routes at the API root.
type progressHandler struct {
	ledger    *app.Ledger
	referrals *app.ReferralService
}

func (h *progressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/xp", h.summary)
	r.Post("/tasks/{task}/complete", h.completeTask)
	r.Get("/leaderboard/xp", h.xpLeaderboard)
	r.Post("/referrals/claim", h.claimReferral)
	r.Post("/referrals/activate", h.activateReferral)
}

type claimRequest struct {
	Code string `json:"code"`
}

func (h *progressHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summary(r.Context(), principal(r), queryInt(r, "recent", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *progressHandler) completeTask(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.CompleteTask(r.Context(), principal(r), chi.URLParam(r, "task"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type xpEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	TotalXP       int    `json:"total_xp"`
	CurrentStreak int    `json:"current_streak"`
}

func (h *progressHandler) xpLeaderboard(w http.ResponseWriter, r *http.Request) {
	students, err := h.ledger.TopByXP(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]xpEntry, len(students))
	for i, s := range students {
		entries[i] = xpEntry{Rank: i + 1, UserID: s.ID, Name: s.Name, TotalXP: s.TotalXP, CurrentStreak: s.CurrentStreak}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *progressHandler) claimReferral(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.referrals.Claim(r.Context(), principal(r), req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeDetail(w, http.StatusCreated, "referral recorded")
}

func (h *progressHandler) activateReferral(w http.ResponseWriter, r *http.Request) {
	result, err := h.referrals.Activate(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
