package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

type errorBody struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Bound          bool   `json:"bound"`
	CanOpen        bool   `json:"can_open"`
	ActiveSessions int    `json:"active_sessions"`
}

type leaderboardResponse struct {
	SourceID    string                   `json:"source_id"`
	Accounts    int                      `json:"accounts"`
	Entries     []model.LeaderboardEntry `json:"entries"`
	RefreshedAt time.Time                `json:"refreshed_at"`
	Error       string                   `json:"error,omitempty"`
}

// accountRewardsResponse omits the totals when the account has no rewards.
type accountRewardsResponse struct {
	Account    string `json:"account"`
	HasRewards bool   `json:"has_rewards"`
	Rank       int    `json:"rank,omitempty"`
	TotalEther string `json:"total_ether,omitempty"`
	Events     int    `json:"events,omitempty"`
}

type packsResponse struct {
	Account string       `json:"account"`
	Packs   []model.Pack `json:"packs"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status and its fixed user message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.Kind(err) {
	case "config", "connection":
		status = http.StatusServiceUnavailable
	case "contract_call", "query":
		status = http.StatusBadGateway
	case "timeout":
		status = http.StatusGatewayTimeout
	case "cancelled":
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, errorBody{Error: apperr.UserMessage(err)})
}

func (s *Server) requireBound(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.board.Bound() {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apperr.MsgConfigUnavailable})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	poller, _ := s.opener()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Bound:          s.board.Bound(),
		CanOpen:        poller != nil,
		ActiveSessions: s.sessions.Active(),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	snap := s.board.Snapshot()
	writeJSON(w, http.StatusOK, leaderboardResponse{
		SourceID:    snap.SourceID,
		Accounts:    snap.Accounts,
		Entries:     s.board.Leaderboard(limit),
		RefreshedAt: snap.RefreshedAt,
		Error:       snap.Error,
	})
}

func (s *Server) handleAccountRewards(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	resp := accountRewardsResponse{Account: account}
	if entry, found := s.board.AccountTotal(account); found {
		resp.HasRewards = true
		resp.Rank = entry.Rank
		resp.TotalEther = entry.TotalEther
		resp.Events = entry.Events
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccountPacks(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	packs, err := s.board.Holdings(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if packs == nil {
		packs = []model.Pack{}
	}
	writeJSON(w, http.StatusOK, packsResponse{Account: account, Packs: packs})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	tokenID, err := reward.CanonicalTokenID(chi.URLParam(r, "tokenId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid token id"})
		return
	}

	poller, account := s.opener()
	if poller == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apperr.MsgConnection})
		return
	}

	session, err := poller.Begin(account, tokenID)
	if errors.Is(err, reward.ErrSessionActive) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// the outcome is recorded on the session and logged by the poller
		_, _ = poller.Run(s.runs, session, nil)
	}()

	writeJSON(w, http.StatusAccepted, session.Status())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, session.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.board.Refresh("manual")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := chi.URLParam(r, "account")
	if !common.IsHexAddress(account) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid account address"})
		return "", false
	}
	return reward.NormalizeAccount(account), true
}
