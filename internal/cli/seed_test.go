package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

const seedYAML = `
rooms:
  - id: kelas5a1
    host: Bu Sari
    questions:
      - question: Ibu kota Indonesia?
        options: [Bandung, Surabaya, Jakarta, Medan]
        answer: 2
      - category: matematika
        question: 7 x 8 = ?
        options: ["54", "56", "58", "64"]
        answer: 1
  - host: Pak Joko
`

func newSeedLobby() (*memory.Store, *app.LobbyService) {
	store := memory.NewStore()
	cache := memory.NewQuestionRepository(store, time.Minute)
	return store, app.NewLobbyService(store, store, store, store, cache, memory.NewRoundStore())
}

func TestSeedRooms(t *testing.T) {
	ctx := context.Background()
	store, lobby := newSeedLobby()

	rooms, questions, err := seedRooms(ctx, lobby, store, strings.NewReader(seedYAML))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if rooms != 2 || questions != 2 {
		t.Fatalf("expected 2 rooms and 2 questions, got %d and %d", rooms, questions)
	}

	room, err := store.GetRoom(ctx, "KELAS5A1")
	if err != nil || room.HostName != "Bu Sari" {
		t.Fatalf("expected seeded room, got %+v %v", room, err)
	}
	bank, _ := store.LoadQuestions(ctx, "KELAS5A1")
	if len(bank) != 2 || bank[0].Category != domain.DefaultCategory || bank[1].Category != "matematika" {
		t.Fatalf("unexpected bank %+v", bank)
	}

	// Seeding again reuses the room and appends questions.
	if _, _, err := seedRooms(ctx, lobby, store, strings.NewReader(seedYAML)); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	bank, _ = store.LoadQuestions(ctx, "KELAS5A1")
	if len(bank) != 4 {
		t.Fatalf("expected 4 questions after reseed, got %d", len(bank))
	}
}

func TestSeedRejectsInvalidQuestion(t *testing.T) {
	store, lobby := newSeedLobby()
	const bad = `
rooms:
  - id: ROOM0001
    host: Bu Sari
    questions:
      - question: Tiga pilihan saja
        options: [a, b, c]
        answer: 0
`
	if _, _, err := seedRooms(context.Background(), lobby, store, strings.NewReader(bad)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
