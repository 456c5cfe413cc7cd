package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/duelview"
	"quizplay-service/internal/infra/memory"
)

const right = 1

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	rounds := memory.NewRoundStore()
	cache := memory.NewQuestionRepository(store, time.Minute)
	duels := app.NewDuelService(store, store, cache, rounds, memory.NewLocker(), memory.NewFeed(), app.DuelOptions{})
	lobby := app.NewLobbyService(store, store, store, store, cache, rounds)

	router := NewRouter(
		NewAPIHandler(lobby, duels),
		NewWSHandler(duels, duelview.Options{RevealDelay: 10 * time.Millisecond}),
		nil,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

func (s *testServer) do(method, path string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type duelSetup struct {
	room     domain.Room
	p1, p2   joinRoomResponse
	pair     domain.Pair
	question domain.Question
}

func (s *testServer) setupDuel() duelSetup {
	s.t.Helper()
	var d duelSetup
	if code := s.do(http.MethodPost, "/api/rooms", createRoomRequest{HostName: "Bu Sari"}, &d.room); code != http.StatusCreated {
		s.t.Fatalf("create room: status %d", code)
	}
	s.do(http.MethodPost, "/api/rooms/"+d.room.ID+"/players", joinRoomRequest{Name: "Ani"}, &d.p1)
	s.do(http.MethodPost, "/api/rooms/"+d.room.ID+"/players", joinRoomRequest{Name: "Budi"}, &d.p2)
	code := s.do(http.MethodPost, "/api/rooms/"+d.room.ID+"/questions", addQuestionRequest{
		Question: "2 + 2 = ?",
		Options:  []string{"3", "4", "5", "6"},
		Answer:   right,
	}, &d.question)
	if code != http.StatusCreated {
		s.t.Fatalf("add question: status %d", code)
	}
	code = s.do(http.MethodPost, "/api/rooms/"+d.room.ID+"/pairs", createPairRequest{Player1ID: d.p1.Player.ID, Player2ID: d.p2.Player.ID}, &d.pair)
	if code != http.StatusCreated {
		s.t.Fatalf("create pair: status %d", code)
	}
	return d
}

func TestRESTDuelFlow(t *testing.T) {
	s := newTestServer(t)
	d := s.setupDuel()

	if d.p1.Token == "" || d.p1.Token == d.p2.Token {
		t.Fatalf("expected distinct tokens, got %q %q", d.p1.Token, d.p2.Token)
	}

	var round map[string]any
	if code := s.do(http.MethodPost, "/api/pairs/"+d.pair.ID+"/rounds", nil, &round); code != http.StatusOK {
		t.Fatalf("start round: status %d", code)
	}
	question := round["question"].(map[string]any)
	if _, leaked := question["answer"]; leaked {
		t.Fatalf("round leaked the answer index: %v", question)
	}

	var outcome domain.RoundOutcome
	option := right
	code := s.do(http.MethodPost, "/api/pairs/"+d.pair.ID+"/answers", answerRequest{Token: d.p2.Token, Round: 1, Option: &option}, &outcome)
	if code != http.StatusOK || !outcome.Correct || outcome.Slot != domain.Player2 || outcome.Player1Lives != 2 {
		t.Fatalf("unexpected outcome %d %+v", code, outcome)
	}

	var snap domain.Snapshot
	s.do(http.MethodGet, "/api/pairs/"+d.pair.ID, nil, &snap)
	if snap.Pair.GameState.Status != domain.StatusInProgress || snap.Pair.Version != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	var board []domain.LeaderboardEntry
	s.do(http.MethodGet, "/api/leaderboard?limit=1", nil, &board)
	if len(board) != 1 || board[0].PlayerID != d.p2.Player.ID || board[0].TotalPoints != domain.PointsPerCorrect {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	s := newTestServer(t)
	d := s.setupDuel()
	bad := 7
	ok := right

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown pair", http.MethodGet, "/api/pairs/missing", nil, http.StatusNotFound},
		{"unknown room", http.MethodPost, "/api/rooms/NOPE0000/players", joinRoomRequest{Name: "X"}, http.StatusNotFound},
		{"empty name", http.MethodPost, "/api/rooms/" + d.room.ID + "/players", joinRoomRequest{Name: " "}, http.StatusBadRequest},
		{"bad token", http.MethodPost, "/api/pairs/" + d.pair.ID + "/answers", answerRequest{Token: "nope", Round: 1, Option: &ok}, http.StatusBadRequest},
		{"missing option", http.MethodPost, "/api/pairs/" + d.pair.ID + "/answers", map[string]string{"token": d.p1.Token}, http.StatusBadRequest},
		{"missing round", http.MethodPost, "/api/pairs/" + d.pair.ID + "/answers", answerRequest{Token: d.p1.Token, Option: &ok}, http.StatusBadRequest},
		{"no open round", http.MethodPost, "/api/pairs/" + d.pair.ID + "/answers", answerRequest{Token: d.p1.Token, Round: 1, Option: &ok}, http.StatusConflict},
		{"bad limit", http.MethodGet, "/api/leaderboard?limit=abc", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		var body map[string]string
		if code := s.do(tc.method, tc.path, tc.body, &body); code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%v)", tc.name, tc.want, code, body)
		}
		if body["error"] == "" {
			t.Fatalf("%s: expected error body", tc.name)
		}
	}

	s.do(http.MethodPost, "/api/pairs/"+d.pair.ID+"/rounds", nil, nil)
	var body map[string]string
	if code := s.do(http.MethodPost, "/api/pairs/"+d.pair.ID+"/answers", answerRequest{Token: d.p1.Token, Round: 1, Option: &bad}, &body); code != http.StatusBadRequest {
		t.Fatalf("invalid option: expected 400, got %d", code)
	}
}

func TestListQuestionsHidesAnswers(t *testing.T) {
	s := newTestServer(t)
	d := s.setupDuel()

	var bank []map[string]any
	if code := s.do(http.MethodGet, "/api/rooms/"+d.room.ID+"/questions", nil, &bank); code != http.StatusOK {
		t.Fatalf("list questions: status %d", code)
	}
	if len(bank) == 0 {
		t.Fatalf("expected the seeded question")
	}
	for _, q := range bank {
		if _, leaked := q["answer"]; leaked {
			t.Fatalf("question list leaked the answer index: %v", q)
		}
	}

	var body map[string]string
	if code := s.do(http.MethodGet, "/api/rooms/NOPE0000/questions", nil, &body); code != http.StatusNotFound {
		t.Fatalf("unknown room: expected 404, got %d", code)
	}
}

func TestDeletePair(t *testing.T) {
	s := newTestServer(t)
	d := s.setupDuel()

	if code := s.do(http.MethodDelete, "/api/pairs/"+d.pair.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", code)
	}
	var pairs []domain.Pair
	s.do(http.MethodGet, "/api/rooms/"+d.room.ID+"/pairs", nil, &pairs)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
