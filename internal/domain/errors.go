package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors below wrap one of these so callers can
// match either level with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrDuelAlreadyFinished = errors.New("duel already finished")
	// ErrGatewayUnavailable wraps store and network failures.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

var (
	ErrDuelNotFound         = fmt.Errorf("duel %w", ErrNotFound)
	ErrRoomNotFound         = fmt.Errorf("room %w", ErrNotFound)
	ErrPlayerNotFound       = fmt.Errorf("player %w", ErrNotFound)
	ErrNoQuestionsAvailable = fmt.Errorf("no questions available: room question bank %w", ErrNotFound)

	ErrInvalidOptionIndex = fmt.Errorf("%w: option index out of range", ErrInvalidInput)
	ErrInvalidSlot        = fmt.Errorf("%w: unknown player slot", ErrInvalidInput)
	ErrInvalidQuestion    = fmt.Errorf("%w: question needs text and exactly 4 non-empty options", ErrInvalidInput)
	ErrEmptyName          = fmt.Errorf("%w: name is required", ErrInvalidInput)
	ErrSamePlayer         = fmt.Errorf("%w: a pair needs two different players", ErrInvalidInput)
	ErrInvalidToken       = fmt.Errorf("%w: token does not belong to this duel", ErrInvalidInput)

	ErrRoundNotOpen = fmt.Errorf("%w: no round is waiting for answers", ErrConflict)
	// ErrVersionConflict is returned by stores when a pair was written since it was read.
	ErrVersionConflict = fmt.Errorf("%w: pair version is stale", ErrConflict)
)

// Unavailable marks err as a gateway failure, keeping the cause in the message.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
}
