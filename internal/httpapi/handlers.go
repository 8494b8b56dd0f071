package httpapi

import (
	"net/http"
	"slices"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/league-scorekeeper/internal/hub"
	"github.com/DoyleJ11/league-scorekeeper/internal/lobby"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

const viewTimeout = 2 * time.Second

type matchView struct {
	MatchID    string          `json:"match_id"`
	Version    int             `json:"version"`
	NumClients int             `json:"num_clients"`
	HomeScore  int             `json:"home_score"`
	AwayScore  int             `json:"away_score"`
	Session    session.Session `json:"session"`
}

// GetMatch reports the relay replica for a live match.
func GetMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchID")

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.GetLobby{MatchID: matchID, Reply: reply}
		lb := <-reply
		if lb == nil {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}

		views := make(chan lobby.View, 1)
		select {
		case lb.Inbox() <- lobby.GetState{Reply: views}:
		case <-lb.Done():
			writeError(w, http.StatusNotFound, "match not found")
			return
		}

		select {
		case v := <-views:
			home, away := v.Session.Score()
			writeJSON(w, http.StatusOK, matchView{
				MatchID:    v.MatchID,
				Version:    v.Version,
				NumClients: v.NumClients,
				HomeScore:  home,
				AwayScore:  away,
				Session:    v.Session,
			})
		case <-time.After(viewTimeout):
			writeError(w, http.StatusGatewayTimeout, "lobby busy")
		}
	}
}

// AbandonMatch stops the match's lobby and discards its replica.
func AbandonMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchID")
		reply := make(chan bool, 1)
		h.Inbox() <- hub.RemoveLobby{MatchID: matchID, Abandon: true, Reply: reply}
		if !<-reply {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListMatches(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []string, 1)
		h.Inbox() <- hub.ListLobbies{Reply: reply}
		ids := <-reply
		slices.Sort(ids)
		writeJSON(w, http.StatusOK, struct {
			Matches []string `json:"matches"`
		}{Matches: ids})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	payload, _ := sonic.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
