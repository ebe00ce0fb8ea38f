package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/history"
	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
)

// fakeGenerator records every snapshot it is handed and asserts it is
// never entered concurrently for turns of the same session.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    [][]chat.Turn
	reply    func(call int, turns []chat.Turn) (string, error)
	inFlight int32
	overlap  int32
	delay    time.Duration
	block    chan struct{}
	blockOn  string // when set, only turns with this content block
}

func (f *fakeGenerator) Generate(ctx context.Context, turns []chat.Turn, _ generator.Params) (string, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.StoreInt32(&f.overlap, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if f.block != nil && (f.blockOn == "" || turns[len(turns)-1].Content == f.blockOn) {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	f.calls = append(f.calls, copied)
	if f.reply != nil {
		return f.reply(len(f.calls), copied)
	}
	return fmt.Sprintf("reply-%d", len(f.calls)), nil
}

func (f *fakeGenerator) ModelName() string { return "fake" }

func newCoordinator(gen generator.Generator, store history.Store, timeout time.Duration) (*Coordinator, *session.Store, func()) {
	sessions := session.NewStore(0, 0)

	var writer *history.Writer
	cancel := func() {}
	if store != nil {
		writer = history.NewWriter(store)
		ctx, stop := context.WithCancel(context.Background())
		go writer.Run(ctx)
		cancel = func() {
			stop()
			writer.Wait()
		}
	}
	return New(sessions, gen, writer, timeout), sessions, cancel
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	coord, sessions, done := newCoordinator(&fakeGenerator{}, nil, 0)
	defer done()

	cases := []struct {
		name   string
		text   string
		params generator.Params
	}{
		{"empty message", "   ", generator.DefaultParams()},
		{"oversized message", string(make([]rune, MaxMessageLength+1)), generator.DefaultParams()},
		{"temperature too high", "hi", generator.Params{Temperature: 1.5, MaxLength: 1000, TopK: 50, TopP: 0.95}},
		{"max_length too low", "hi", generator.Params{Temperature: 0.7, MaxLength: 10, TopK: 50, TopP: 0.95}},
		{"top_k too low", "hi", generator.Params{Temperature: 0.7, MaxLength: 1000, TopK: 1, TopP: 0.95}},
		{"top_p zero", "hi", generator.Params{Temperature: 0.7, MaxLength: 1000, TopK: 50, TopP: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coord.Submit(context.Background(), "", tc.text, tc.params)
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
	assert.Equal(t, 0, sessions.Len(), "invalid input must be rejected before touching the session store")
}

func TestSubmitBuildsContextAcrossTurns(t *testing.T) {
	gen := &fakeGenerator{}
	coord, _, done := newCoordinator(gen, nil, 0)
	defer done()

	first, err := coord.Submit(context.Background(), "", "hi", generator.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, chat.RoleBot, first.Role)

	_, err = coord.Submit(context.Background(), first.SessionID, "how are you", generator.DefaultParams())
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	second := gen.calls[1]
	require.Len(t, second, 3)
	assert.Equal(t, "hi", second[0].Content)
	assert.Equal(t, chat.RoleBot, second[1].Role)
	assert.Equal(t, "reply-1", second[1].Content)
	assert.Equal(t, "how are you", second[2].Content)
}

func TestSubmitSerializesSameSession(t *testing.T) {
	gen := &fakeGenerator{delay: 5 * time.Millisecond}
	coord, _, done := newCoordinator(gen, nil, 0)
	defer done()

	first, err := coord.Submit(context.Background(), "", "warmup", generator.DefaultParams())
	require.NoError(t, err)
	sessionID := first.SessionID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.Submit(context.Background(), sessionID, fmt.Sprintf("msg-%d", i), generator.DefaultParams())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&gen.overlap), "generator entered concurrently for one session")

	// Every snapshot must alternate user/bot turns in submission order.
	gen.mu.Lock()
	defer gen.mu.Unlock()
	for _, call := range gen.calls {
		for i, turn := range call {
			want := chat.RoleUser
			if i%2 == 1 {
				want = chat.RoleBot
			}
			assert.Equal(t, want, turn.Role, "interleaved context in snapshot %v", call)
		}
	}
}

func TestSubmitIndependentSessions(t *testing.T) {
	block := make(chan struct{})
	gen := &fakeGenerator{block: block, blockOn: "slow one"}
	coord, _, done := newCoordinator(gen, nil, 0)
	defer done()

	slowDone := make(chan error, 1)
	go func() {
		_, err := coord.Submit(context.Background(), "", "slow one", generator.DefaultParams())
		slowDone <- err
	}()

	// A submission to a different session completes while the first
	// session's generation is still blocked.
	_, err := coord.Submit(context.Background(), "", "fast one", generator.DefaultParams())
	require.NoError(t, err)
	select {
	case err := <-slowDone:
		t.Fatalf("slow session finished before being unblocked: %v", err)
	default:
	}

	close(block)
	require.NoError(t, <-slowDone)
}

func TestSubmitGeneratorFailureKeepsUserTurn(t *testing.T) {
	boom := errors.New("model exploded")
	gen := &fakeGenerator{reply: func(call int, _ []chat.Turn) (string, error) {
		if call == 2 {
			return "", boom
		}
		return fmt.Sprintf("reply-%d", call), nil
	}}
	store := history.NewMemoryStore()
	coord, _, done := newCoordinator(gen, store, 0)

	first, err := coord.Submit(context.Background(), "", "hi", generator.DefaultParams())
	require.NoError(t, err)

	_, err = coord.Submit(context.Background(), first.SessionID, "second", generator.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	assert.ErrorIs(t, err, boom)

	// The failed user turn stays in context for the next attempt.
	_, err = coord.Submit(context.Background(), first.SessionID, "third", generator.DefaultParams())
	require.NoError(t, err)

	third := gen.calls[len(gen.calls)-1]
	var contents []string
	for _, turn := range third {
		contents = append(contents, turn.Content)
	}
	assert.Equal(t, []string{"hi", "reply-1", "second", "third"}, contents)

	done()
	turns, err := store.Read(context.Background(), first.SessionID, 0)
	require.NoError(t, err)
	// Only successful submissions persist; the failed "second" exchange
	// never reached the history store.
	require.Len(t, turns, 4)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, "third", turns[2].Content)
}

func TestSubmitTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	gen := &fakeGenerator{block: block, blockOn: "hello"}
	coord, sessions, done := newCoordinator(gen, nil, 20*time.Millisecond)
	defer done()

	sess := sessions.GetOrCreate("")

	start := time.Now()
	_, err := coord.Submit(context.Background(), sess.ID, "hello", generator.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, KindGenerationTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	// The lock was released and the timed-out user turn is still in
	// context for the retry; the retry itself does not block.
	turn, err := coord.Submit(context.Background(), sess.ID, "hello again", generator.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, chat.RoleBot, turn.Role)

	latest := gen.calls[len(gen.calls)-1]
	require.Len(t, latest, 2)
	assert.Equal(t, "hello", latest[0].Content)
	assert.Equal(t, "hello again", latest[1].Content)
}

func TestResetConcurrentWithSubmissions(t *testing.T) {
	gen := &fakeGenerator{}
	coord, sessions, done := newCoordinator(gen, nil, 0)
	defer done()

	first, err := coord.Submit(context.Background(), "", "warmup", generator.DefaultParams())
	require.NoError(t, err)
	sessionID := first.SessionID

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := coord.Submit(context.Background(), sessionID, fmt.Sprintf("msg-%d-%d", i, j), generator.DefaultParams())
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 40; j++ {
			sessions.Reset(sessionID)
		}
	}()
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&gen.overlap), "generator entered concurrently for one session")
}

func TestSubmitPersistsBothTurnsInOrder(t *testing.T) {
	store := history.NewMemoryStore()
	coord, _, done := newCoordinator(&fakeGenerator{}, store, 0)

	turn, err := coord.Submit(context.Background(), "", "hi", generator.DefaultParams())
	require.NoError(t, err)
	done()

	turns, err := store.Read(context.Background(), turn.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, chat.RoleBot, turns[1].Role)
	assert.Equal(t, turn.Content, turns[1].Content)
}

func TestResetClearsContextNotHistory(t *testing.T) {
	store := history.NewMemoryStore()
	gen := &fakeGenerator{}
	coord, sessions, done := newCoordinator(gen, store, 0)

	first, err := coord.Submit(context.Background(), "", "before reset", generator.DefaultParams())
	require.NoError(t, err)

	sessions.Reset(first.SessionID)

	_, err = coord.Submit(context.Background(), first.SessionID, "after reset", generator.DefaultParams())
	require.NoError(t, err)

	latest := gen.calls[len(gen.calls)-1]
	require.Len(t, latest, 1, "pre-reset turns must not reach generation")
	assert.Equal(t, "after reset", latest[0].Content)

	done()
	turns, err := store.Read(context.Background(), first.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 4, "history keeps pre-reset turns")
}
