package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"quizplay-service/internal/domain"
)

// QuestionLoader fetches a room's question bank from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, roomID string) ([]domain.Question, error)
}

// QuestionRepository keeps each room's question bank in process for a TTL.
//
// Every room carries a generation that Invalidate bumps. A load only fills the
// cache if the generation it started under is still current, so a bank read
// before a question was added never outlives the invalidation.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  clockwork.Clock
	loads  singleflight.Group

	mu    sync.Mutex
	banks map[string]roomBank
	gens  map[string]uint64
}

type roomBank struct {
	questions []domain.Question
	gen       uint64
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clockwork.NewRealClock(),
		banks:  make(map[string]roomBank),
		gens:   make(map[string]uint64),
	}
}

func (r *QuestionRepository) ListQuestions(ctx context.Context, roomID string) ([]domain.Question, error) {
	bank, gen, ok := r.cached(roomID)
	if ok {
		return bank, nil
	}

	// Callers of one generation share a load; a newer generation never joins
	// a load that began before it.
	key := roomID + "#" + strconv.FormatUint(gen, 10)
	result, err, _ := r.loads.Do(key, func() (interface{}, error) {
		if bank, _, ok := r.cached(roomID); ok {
			return bank, nil
		}
		questions, err := r.loader.LoadQuestions(ctx, roomID)
		if err != nil {
			return nil, err
		}
		r.store(roomID, gen, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached bank of a room and retires any load in flight
// for it.
func (r *QuestionRepository) Invalidate(_ context.Context, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[roomID]++
	delete(r.banks, roomID)
}

// cached returns the live bank of a room, or the generation a fresh load
// should be tagged with.
func (r *QuestionRepository) cached(roomID string) ([]domain.Question, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen := r.gens[roomID]
	b, ok := r.banks[roomID]
	if ok && b.gen == gen && b.expiresAt.After(r.clock.Now()) {
		return b.questions, gen, true
	}
	return nil, gen, false
}

func (r *QuestionRepository) store(roomID string, gen uint64, questions []domain.Question) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[roomID] != gen {
		return
	}
	r.banks[roomID] = roomBank{
		questions: questions,
		gen:       gen,
		expiresAt: r.clock.Now().Add(r.ttl + jitter(r.ttl)),
	}
}

// jitter spreads expirations by up to a tenth of the TTL.
func jitter(ttl time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(ttl)/10 + 1))
}
