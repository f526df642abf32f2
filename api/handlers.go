// Package api exposes the minimal HTTP surfaces spec.md leaves in scope
// beyond the duel channel itself: a public leaderboard and a per-user
// rating history, reusing the teacher's CORS/bearer-token handler shape
// (api/handlers.go) against the new RatingStore-backed reads.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"quizduel-server/auth"
	"quizduel-server/storage"
)

const bearerPrefix = "Bearer "

// Handler holds the dependencies the HTTP surfaces read from.
type Handler struct {
	Auth  auth.Resolver
	Store *storage.Store
	Log   *slog.Logger
}

// NewHandler builds a Handler. Store may be nil (no persistence
// configured); both endpoints degrade to empty results in that case.
func NewHandler(resolver auth.Resolver, store *storage.Store, log *slog.Logger) *Handler {
	return &Handler{Auth: resolver, Store: store, Log: log}
}

// CORS sets CORS headers on the response. Returns true if the request was
// a preflight OPTIONS and has already been answered.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// extractUserID validates the Authorization header and returns the user
// id, or "" on any failure (missing header, malformed token, etc).
func (h *Handler) extractUserID(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	userID, _, _, err := h.Auth.ResolveToken(r.Context(), token)
	if err != nil {
		return ""
	}
	return userID
}

// History returns the authenticated user's rating-history rows.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := h.extractUserID(r)
	if userID == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	var list interface{} = []string{}
	if h.Store != nil {
		history, err := h.Store.ListRatingHistory(r.Context(), userID)
		if err != nil {
			h.Log.Error("list rating history", "error", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		list = history
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		h.Log.Error("encode history response", "error", err)
	}
}

// LeaderboardResponse is the JSON structure for /api/leaderboard.
type LeaderboardResponse struct {
	Entries          []storage.LeaderboardEntry `json:"entries"`
	CurrentUserEntry *storage.LeaderboardEntry  `json:"current_user_entry"`
}

// Leaderboard returns the global leaderboard, paginated, plus the
// authenticated caller's own entry if it falls outside the returned page.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	entries := []storage.LeaderboardEntry{}
	if h.Store != nil {
		var err error
		entries, err = h.Store.ListLeaderboard(r.Context(), limit, offset)
		if err != nil {
			h.Log.Error("list leaderboard", "error", err)
			http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
			return
		}
	}

	var currentUserEntry *storage.LeaderboardEntry
	if authUserID := h.extractUserID(r); authUserID != "" && h.Store != nil {
		cur, err := h.Store.GetLeaderboardEntryByUserID(r.Context(), authUserID)
		if err != nil {
			h.Log.Error("get leaderboard entry", "error", err)
		} else if cur != nil {
			inTop := false
			for i := range entries {
				if entries[i].UserID == authUserID {
					entries[i].IsCurrentUser = true
					inTop = true
					break
				}
			}
			if !inTop {
				cur.IsCurrentUser = true
				currentUserEntry = cur
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := LeaderboardResponse{Entries: entries, CurrentUserEntry: currentUserEntry}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Error("encode leaderboard response", "error", err)
	}
}
