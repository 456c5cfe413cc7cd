package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
)

// APIHandler serves the REST surface for hosts and players.
type APIHandler struct {
	lobby *app.LobbyService
	duels *app.DuelService
}

func NewAPIHandler(lobby *app.LobbyService, duels *app.DuelService) *APIHandler {
	return &APIHandler{lobby: lobby, duels: duels}
}

type createRoomRequest struct {
	HostName string `json:"hostName"`
}

type joinRoomRequest struct {
	Name string `json:"name"`
}

type joinRoomResponse struct {
	Player domain.Player `json:"player"`
	Token  string        `json:"token"`
}

type addQuestionRequest struct {
	Category string   `json:"category"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

type createPairRequest struct {
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

type answerRequest struct {
	Token  string `json:"token"`
	Round  int    `json:"round"`
	Option *int   `json:"option"`
}

func (h *APIHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.lobby.CreateRoom(r.Context(), req.HostName)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *APIHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	player, err := h.lobby.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinRoomResponse{Player: player, Token: player.Token})
}

func (h *APIHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.lobby.ListPlayers(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (h *APIHandler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var req addQuestionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, err := h.lobby.AddQuestion(r.Context(), domain.Question{
		RoomID:   chi.URLParam(r, "roomID"),
		Category: req.Category,
		Prompt:   req.Question,
		Options:  req.Options,
		Answer:   req.Answer,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// ListQuestions shows a room's bank without answer indexes, since any room
// member can call it.
func (h *APIHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	bank, err := h.lobby.ListQuestions(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]questionView, len(bank))
	for i, q := range bank {
		out[i] = newQuestionView(q)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req createPairRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, err := h.lobby.CreatePair(r.Context(), chi.URLParam(r, "roomID"), req.Player1ID, req.Player2ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (h *APIHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.lobby.ListPairs(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (h *APIHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	if err := h.lobby.DeletePair(r.Context(), chi.URLParam(r, "pairID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	snap, err := h.duels.GetState(r.Context(), chi.URLParam(r, "pairID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) StartRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.duels.StartRound(r.Context(), chi.URLParam(r, "pairID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoundView(round))
}

// SubmitAnswer resolves the caller's slot from the join token, never from
// anything the client claims about itself.
func (h *APIHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := readJSON(r, &req); err != nil || req.Option == nil || req.Round < 1 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pairID := chi.URLParam(r, "pairID")
	seat, err := h.duels.Seat(r.Context(), pairID, req.Token)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	outcome, err := h.duels.SubmitAnswer(r.Context(), pairID, seat.Slot, req.Round, *req.Option)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}
	board, err := h.lobby.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
