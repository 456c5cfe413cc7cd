// Package duelview holds one client's view of a duel: a cached copy of the
// pair kept current by the change feed, the local round phase, and the answer
// that client has in flight.
package duelview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/domain"
)

// DefaultRevealDelay is the pause between submitting and showing the outcome.
const DefaultRevealDelay = 3 * time.Second

// DuelAPI is what a view needs from the duel engine.
type DuelAPI interface {
	StartRound(ctx context.Context, pairID string) (domain.Round, error)
	SubmitAnswer(ctx context.Context, pairID string, slot domain.Slot, round, option int) (domain.RoundOutcome, error)
	GetState(ctx context.Context, pairID string) (domain.Snapshot, error)
	Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error)
}

type EventType string

const (
	EventState     EventType = "state"
	EventQuestion  EventType = "question"
	EventSubmitted EventType = "submitted"
	EventOutcome   EventType = "outcome"
)

// Event is pushed to the client whenever its view changes.
type Event struct {
	Type    EventType
	View    View
	Round   *domain.Round
	Outcome *domain.RoundOutcome
}

// View is the client-visible state of the controller.
type View struct {
	Seat      domain.Seat  `json:"seat"`
	Pair      domain.Pair  `json:"pair"`
	Phase     domain.Phase `json:"phase"`
	Round     int          `json:"round"`
	Submitted bool         `json:"submitted"`
}

type Options struct {
	RevealDelay time.Duration
	Clock       clockwork.Clock
}

// pendingAnswer is this client's scratch record of its answer for the
// current round. It never leaves the controller.
type pendingAnswer struct {
	round      int
	option     int
	answeredAt time.Time
	outcome    domain.RoundOutcome
	revealed   bool
}

// Controller drives one client's duel screen.
type Controller struct {
	api   DuelAPI
	seat  domain.Seat
	clock clockwork.Clock
	delay time.Duration

	// submitMu serializes StartRound and Submit so one answer per round
	// reaches the engine.
	submitMu sync.Mutex

	mu      sync.Mutex
	pair    domain.Pair
	phase   domain.Phase
	round   *domain.Round
	pending *pendingAnswer
	timer   clockwork.Timer
	events  chan Event
	stop    func()
	closed  bool
}

func New(api DuelAPI, seat domain.Seat, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RevealDelay < 0 {
		opts.RevealDelay = 0
	}
	return &Controller{
		api:    api,
		seat:   seat,
		clock:  opts.Clock,
		delay:  opts.RevealDelay,
		phase:  domain.PhaseWaiting,
		events: make(chan Event, 16),
	}
}

// Events streams view changes until Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Attach loads the current pair and starts following its change feed.
func (c *Controller) Attach(ctx context.Context) error {
	snap, err := c.api.GetState(ctx, c.seat.PairID)
	if err != nil {
		return err
	}
	updates, cancel, err := c.api.Subscribe(ctx, c.seat.PairID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pair = snap.Pair
	if snap.Phase == domain.PhaseFinished {
		c.phase = domain.PhaseFinished
	}
	c.stop = cancel
	c.emitLocked(Event{Type: EventState})
	c.mu.Unlock()

	go func() {
		for pair := range updates {
			c.Reconcile(pair)
		}
	}()
	return nil
}

// Reconcile replaces the cached pair with a remote copy. Copies older than
// the cached version are dropped. A winner forces the finished phase.
func (c *Controller) Reconcile(pair domain.Pair) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || pair.ID != c.seat.PairID || pair.Version < c.pair.Version {
		return false
	}
	c.pair = pair
	if pair.GameState.Winner != "" {
		c.phase = domain.PhaseFinished
	}
	c.emitLocked(Event{Type: EventState})
	return true
}

// StartRound asks the engine for the round to play and shows its question.
func (c *Controller) StartRound(ctx context.Context) (domain.Round, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.mu.Lock()
	if c.phase == domain.PhaseFinished {
		c.mu.Unlock()
		return domain.Round{}, domain.ErrDuelAlreadyFinished
	}
	if c.pending != nil && !c.pending.revealed {
		c.mu.Unlock()
		return domain.Round{}, domain.ErrRoundNotOpen
	}
	c.mu.Unlock()

	round, err := c.api.StartRound(ctx, c.seat.PairID)
	if err != nil {
		c.noteFinished(err)
		return domain.Round{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = &round
	c.phase = domain.PhaseQuestion
	c.pending = nil
	c.emitLocked(Event{Type: EventQuestion, Round: &round})
	return round, nil
}

// Submit sends this client's answer once per round; later calls return the
// first outcome. The outcome is revealed after the reveal delay regardless of
// what the feed delivers meanwhile.
func (c *Controller) Submit(ctx context.Context, option int) (domain.RoundOutcome, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.mu.Lock()
	if c.phase != domain.PhaseQuestion || c.round == nil {
		c.mu.Unlock()
		if c.Phase() == domain.PhaseFinished {
			return domain.RoundOutcome{}, domain.ErrDuelAlreadyFinished
		}
		return domain.RoundOutcome{}, domain.ErrRoundNotOpen
	}
	if c.pending != nil {
		outcome := c.pending.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	roundNumber := c.round.Number
	c.mu.Unlock()

	outcome, err := c.api.SubmitAnswer(ctx, c.seat.PairID, c.seat.Slot, roundNumber, option)
	if err != nil {
		c.noteFinished(err)
		c.noteRoundClosed(err, roundNumber)
		return domain.RoundOutcome{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return outcome, nil
	}
	c.pending = &pendingAnswer{
		round:      roundNumber,
		option:     option,
		answeredAt: c.clock.Now(),
		outcome:    outcome,
	}
	c.emitLocked(Event{Type: EventSubmitted, Outcome: &outcome})
	c.timer = c.clock.AfterFunc(c.delay, c.reveal)
	return outcome, nil
}

func (c *Controller) reveal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending == nil || c.pending.revealed {
		return
	}
	c.pending.revealed = true
	outcome := c.pending.outcome
	switch {
	case outcome.Winner != "" || c.pair.GameState.Winner != "":
		c.phase = domain.PhaseFinished
	case c.phase != domain.PhaseFinished:
		c.phase = domain.PhaseResult
	}
	log.Debug().
		Str("pair_id", c.seat.PairID).
		Str("slot", string(c.seat.Slot)).
		Int("round", c.pending.round).
		Dur("after", c.clock.Since(c.pending.answeredAt)).
		Msg("outcome revealed")
	c.emitLocked(Event{Type: EventOutcome, Outcome: &outcome})
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Close stops the feed and any pending reveal, then closes Events.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	stop := c.stop
	close(c.events)
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (c *Controller) noteFinished(err error) {
	if !errors.Is(err, domain.ErrDuelAlreadyFinished) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseFinished {
		c.phase = domain.PhaseFinished
		c.emitLocked(Event{Type: EventState})
	}
}

// noteRoundClosed drops a question the engine has already moved past, so the
// client starts the current round instead.
func (c *Controller) noteRoundClosed(err error, round int) {
	if !errors.Is(err, domain.ErrRoundNotOpen) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round == nil || c.round.Number != round || c.phase != domain.PhaseQuestion {
		return
	}
	c.round = nil
	c.phase = domain.PhaseWaiting
	c.emitLocked(Event{Type: EventState})
}

func (c *Controller) viewLocked() View {
	v := View{
		Seat:      c.seat,
		Pair:      c.pair,
		Phase:     c.phase,
		Submitted: c.pending != nil,
	}
	if c.round != nil {
		v.Round = c.round.Number
	}
	return v
}

func (c *Controller) emitLocked(ev Event) {
	if c.closed {
		return
	}
	ev.View = c.viewLocked()
	select {
	case c.events <- ev:
	default:
		// reader is behind; drop the oldest event to keep the newest view
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}
