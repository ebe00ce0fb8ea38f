package history

import (
	"context"
	"log"
	"time"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

const defaultWriterBuffer = 256

// Writer appends turns to a Store off the request path through a single
// goroutine, so writes land in enqueue order. A failed append is retried
// once and then logged; persistence failures never surface to the client
// since the in-memory context already holds the turn.
type Writer struct {
	store Store
	ch    chan chat.Turn
	done  chan struct{}
}

// NewWriter creates a writer in front of store.
func NewWriter(store Store) *Writer {
	return &Writer{
		store: store,
		ch:    make(chan chat.Turn, defaultWriterBuffer),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until the context is cancelled, then flushes what
// remains. Call in its own goroutine.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case turn := <-w.ch:
			w.append(turn)
		case <-ctx.Done():
			for {
				select {
				case turn := <-w.ch:
					w.append(turn)
				default:
					return
				}
			}
		}
	}
}

// Enqueue queues a turn for persistence. Blocks only when the buffer is
// full, which keeps ordering intact under bursts instead of dropping.
func (w *Writer) Enqueue(turn chat.Turn) {
	select {
	case w.ch <- turn:
	case <-w.done:
		log.Printf("[history] writer stopped, dropping turn for session=%s", turn.SessionID)
	}
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() {
	<-w.done
}

func (w *Writer) append(turn chat.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.store.Append(ctx, turn)
	if err == nil {
		return
	}
	if retryErr := w.store.Append(ctx, turn); retryErr != nil {
		log.Printf("[history] persist failed for session=%s: %v", turn.SessionID, retryErr)
	}
}
