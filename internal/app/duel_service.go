package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"quizplay-service/internal/domain"
)

// DuelOptions tunes the duel engine.
type DuelOptions struct {
	Draw               DrawMode
	MaxConflictRetries int
}

// DuelService is the arbiter for every duel: rounds are opened and answers
// scored here, under a per-pair lock, and persisted with a version check.
type DuelService struct {
	pairs     PairRepository
	players   PlayerRepository
	questions QuestionRepository
	rounds    RoundStore
	locks     Locker
	feed      ChangeFeed
	selector  *QuestionSelector
	retries   int
}

func NewDuelService(pairs PairRepository, players PlayerRepository, questions QuestionRepository, rounds RoundStore, locks Locker, feed ChangeFeed, opts DuelOptions) *DuelService {
	retries := opts.MaxConflictRetries
	if retries <= 0 {
		retries = 3
	}
	return &DuelService{
		pairs:     pairs,
		players:   players,
		questions: questions,
		rounds:    rounds,
		locks:     locks,
		feed:      feed,
		selector:  NewQuestionSelector(opts.Draw),
		retries:   retries,
	}
}

// StartRound opens the next round of a duel. When the current round is still
// waiting for its first answer, that round is returned so both players end up
// on the same question.
func (s *DuelService) StartRound(ctx context.Context, pairID string) (domain.Round, error) {
	unlock, err := s.locks.Lock(ctx, pairID)
	if err != nil {
		return domain.Round{}, err
	}
	defer unlock()

	pair, err := s.pairs.GetPair(ctx, pairID)
	if err != nil {
		return domain.Round{}, err
	}
	if pair.Finished() {
		return domain.Round{}, domain.ErrDuelAlreadyFinished
	}

	rec, err := s.loadRound(ctx, pair)
	if err != nil {
		return domain.Round{}, err
	}
	if rec.Phase == domain.PhaseQuestion && len(rec.Outcomes) == 0 {
		return domain.Round{Number: rec.Number, Question: rec.Question}, nil
	}

	bank, err := s.questions.ListQuestions(ctx, pair.RoomID)
	if err != nil {
		return domain.Round{}, err
	}
	question, seen, err := s.selector.Draw(bank, rec.Seen)
	if err != nil {
		return domain.Round{}, err
	}

	rec.Number++
	rec.Phase = domain.PhaseQuestion
	rec.Question = question
	rec.Seen = seen
	rec.Outcomes = make(map[domain.Slot]domain.RoundOutcome)
	if err := s.rounds.SaveRound(ctx, rec); err != nil {
		return domain.Round{}, err
	}

	log.Debug().
		Str("pair_id", pairID).
		Int("round", rec.Number).
		Str("question_id", question.ID).
		Msg("round started")
	return domain.Round{Number: rec.Number, Question: question}, nil
}

// SubmitAnswer scores one player's answer to the question of round. An answer
// for any round other than the open one is rejected, so an option is always
// checked against the question the player was shown. A repeated submission by
// the same slot in the same round returns the first outcome.
func (s *DuelService) SubmitAnswer(ctx context.Context, pairID string, slot domain.Slot, round, option int) (domain.RoundOutcome, error) {
	if !slot.Valid() {
		return domain.RoundOutcome{}, domain.ErrInvalidSlot
	}

	unlock, err := s.locks.Lock(ctx, pairID)
	if err != nil {
		return domain.RoundOutcome{}, err
	}
	defer unlock()

	pair, err := s.pairs.GetPair(ctx, pairID)
	if err != nil {
		return domain.RoundOutcome{}, err
	}
	if pair.Finished() {
		return domain.RoundOutcome{}, domain.ErrDuelAlreadyFinished
	}
	if prev, ok := pair.Answers.Outcome(round, slot); ok {
		return prev, nil
	}

	rec, err := s.loadRound(ctx, pair)
	if err != nil {
		return domain.RoundOutcome{}, err
	}
	if rec.Phase != domain.PhaseQuestion || round != rec.Number {
		return domain.RoundOutcome{}, domain.ErrRoundNotOpen
	}
	if !rec.Question.ValidOption(option) {
		return domain.RoundOutcome{}, domain.ErrInvalidOptionIndex
	}
	correct := rec.Question.IsCorrect(option)

	saved, outcome, err := s.persistAnswer(ctx, pair, slot, round, correct)
	if err != nil {
		return domain.RoundOutcome{}, err
	}

	// The pair row is authoritative from here on. A lost round record is
	// rebuilt from its answer log on the next read.
	rec.Outcomes[slot] = outcome
	rec.settle(saved)
	if err := s.rounds.SaveRound(ctx, rec); err != nil {
		log.Warn().Err(err).Str("pair_id", pairID).Int("round", round).Msg("save round after answer failed")
	}

	if err := s.feed.Publish(ctx, saved); err != nil {
		log.Warn().Err(err).Str("pair_id", pairID).Msg("publish pair update failed")
	}

	event := log.Info().
		Str("pair_id", pairID).
		Str("slot", string(slot)).
		Int("round", round).
		Bool("correct", outcome.Correct).
		Int64("version", saved.Version)
	if saved.Finished() {
		event = event.Str("winner", saved.GameState.Winner)
	}
	event.Msg("answer scored")
	return outcome, nil
}

// persistAnswer applies the answer to the latest pair state and writes it,
// together with the answer log, under a version check. A stale read is
// refreshed and the answer re-applied unless the refreshed pair already
// carries it.
func (s *DuelService) persistAnswer(ctx context.Context, pair domain.Pair, slot domain.Slot, round int, correct bool) (domain.Pair, domain.RoundOutcome, error) {
	playerID := pair.PlayerID(slot)
	for attempt := 0; ; attempt++ {
		next, effect, err := pair.GameState.ApplyAnswer(slot, correct, playerID)
		if err != nil {
			return domain.Pair{}, domain.RoundOutcome{}, err
		}
		outcome := domain.RoundOutcome{
			Round:        round,
			Slot:         slot,
			Correct:      effect.Correct,
			Healed:       effect.Healed,
			Awarded:      effect.Awarded,
			Player1Lives: next.Player1Lives,
			Player2Lives: next.Player2Lives,
			Winner:       next.Winner,
		}
		update := domain.StateUpdate{
			PairID:          pair.ID,
			ExpectedVersion: pair.Version,
			State:           next,
			Answers:         pair.Answers.With(outcome),
		}
		if effect.Awarded > 0 {
			update.Credit = &domain.PointsCredit{PlayerID: playerID, Points: effect.Awarded}
		}

		saved, err := s.pairs.ApplyGameState(ctx, update)
		if err == nil {
			return saved, outcome, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= s.retries {
			return domain.Pair{}, domain.RoundOutcome{}, err
		}

		log.Debug().
			Str("pair_id", pair.ID).
			Int("attempt", attempt+1).
			Int64("stale_version", pair.Version).
			Msg("pair changed underneath answer, retrying")
		if pair, err = s.pairs.GetPair(ctx, pair.ID); err != nil {
			return domain.Pair{}, domain.RoundOutcome{}, err
		}
		if prev, ok := pair.Answers.Outcome(round, slot); ok {
			return pair, prev, nil
		}
		if pair.Finished() {
			return domain.Pair{}, domain.RoundOutcome{}, domain.ErrDuelAlreadyFinished
		}
	}
}

// GetState returns the pair and the phase of its current round.
func (s *DuelService) GetState(ctx context.Context, pairID string) (domain.Snapshot, error) {
	pair, err := s.pairs.GetPair(ctx, pairID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	rec, err := s.loadRound(ctx, pair)
	if err != nil {
		return domain.Snapshot{}, err
	}
	phase := rec.Phase
	if pair.Finished() {
		phase = domain.PhaseFinished
	}
	return domain.Snapshot{Pair: pair, Phase: phase, Round: rec.Number}, nil
}

// Seat resolves which side of the pair the holder of token plays.
func (s *DuelService) Seat(ctx context.Context, pairID, token string) (domain.Seat, error) {
	if token == "" {
		return domain.Seat{}, domain.ErrInvalidToken
	}
	pair, err := s.pairs.GetPair(ctx, pairID)
	if err != nil {
		return domain.Seat{}, err
	}
	player, err := s.players.GetPlayerByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Seat{}, domain.ErrInvalidToken
		}
		return domain.Seat{}, err
	}
	slot, ok := pair.SlotOf(player.ID)
	if !ok {
		return domain.Seat{}, domain.ErrInvalidToken
	}
	return domain.Seat{PairID: pairID, Slot: slot, PlayerID: player.ID}, nil
}

// Subscribe returns a channel of pair updates. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *DuelService) Subscribe(ctx context.Context, pairID string) (<-chan domain.Pair, func(), error) {
	if _, err := s.pairs.GetPair(ctx, pairID); err != nil {
		return nil, nil, err
	}
	return s.feed.Subscribe(ctx, pairID)
}

// loadRound returns the pair's round record, with any outcome the pair's
// answer log holds for that round folded back in.
func (s *DuelService) loadRound(ctx context.Context, pair domain.Pair) (RoundRecord, error) {
	rec, ok, err := s.rounds.LoadRound(ctx, pair.ID)
	if err != nil {
		return RoundRecord{}, err
	}
	if !ok {
		rec = newRoundRecord(pair.ID)
	}
	if rec.Outcomes == nil {
		rec.Outcomes = make(map[domain.Slot]domain.RoundOutcome)
	}
	if rec.Number == 0 || pair.Answers.Round != rec.Number {
		return rec, nil
	}
	for _, slot := range []domain.Slot{domain.Player1, domain.Player2} {
		if _, ok := rec.Outcomes[slot]; ok {
			continue
		}
		if o, ok := pair.Answers.Outcome(rec.Number, slot); ok {
			rec.Outcomes[slot] = o
		}
	}
	rec.settle(pair)
	return rec, nil
}
