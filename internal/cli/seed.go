package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

type seedFile struct {
	Rooms []seedRoom `yaml:"rooms"`
}

type seedRoom struct {
	ID        string         `yaml:"id"`
	Host      string         `yaml:"host"`
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	Category string   `yaml:"category"`
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
	Answer   int      `yaml:"answer"`
}

// NewSeedCmd loads rooms and their question banks from a YAML file.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert rooms and questions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			b, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			cache := memory.NewQuestionRepository(b.loader, 0)
			lobby := app.NewLobbyService(b.rooms, b.players, b.pairs, b.writer, cache, memory.NewRoundStore())
			rooms, questions, err := seedRooms(cmd.Context(), lobby, b.rooms, f)
			if err != nil {
				return err
			}
			log.Info().Int("rooms", rooms).Int("questions", questions).Msg("seed applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/seed.example.yaml", "YAML file with rooms and questions")
	return cmd
}

// seedRooms creates missing rooms and adds every question through the lobby
// so seeded content gets the same validation as hosts' input.
func seedRooms(ctx context.Context, lobby *app.LobbyService, rooms app.RoomRepository, r io.Reader) (int, int, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, 0, fmt.Errorf("parse seed file: %w", err)
	}

	var roomCount, questionCount int
	for i, sr := range file.Rooms {
		room, err := ensureRoom(ctx, lobby, rooms, sr)
		if err != nil {
			return roomCount, questionCount, fmt.Errorf("room %d: %w", i, err)
		}
		roomCount++
		for j, sq := range sr.Questions {
			_, err := lobby.AddQuestion(ctx, domain.Question{
				RoomID:   room.ID,
				Category: sq.Category,
				Prompt:   sq.Question,
				Options:  sq.Options,
				Answer:   sq.Answer,
			})
			if err != nil {
				return roomCount, questionCount, fmt.Errorf("room %s question %d: %w", room.ID, j, err)
			}
			questionCount++
		}
	}
	return roomCount, questionCount, nil
}

func ensureRoom(ctx context.Context, lobby *app.LobbyService, rooms app.RoomRepository, sr seedRoom) (domain.Room, error) {
	if sr.ID == "" {
		return lobby.CreateRoom(ctx, sr.Host)
	}
	id := strings.ToUpper(strings.TrimSpace(sr.ID))
	room, err := rooms.GetRoom(ctx, id)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, err
	}
	if strings.TrimSpace(sr.Host) == "" {
		return domain.Room{}, domain.ErrEmptyName
	}
	return rooms.InsertRoom(ctx, domain.Room{
		ID:        id,
		HostName:  strings.TrimSpace(sr.Host),
		CreatedAt: time.Now().UTC(),
	})
}
