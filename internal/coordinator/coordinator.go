// Package coordinator serializes generation per session and keeps the
// context window and durable history consistent with submission order.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/history"
	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
)

const (
	// MaxMessageLength bounds a single user message, in runes.
	MaxMessageLength = 500

	// DefaultGenerationTimeout caps one generator call.
	DefaultGenerationTimeout = 60 * time.Second
)

// Coordinator drives one conversation turn end to end: validate, acquire
// the session's exclusive lock, snapshot context, generate, record both
// turns.
//
// Busy-session policy: submissions to a session with a generation in
// flight queue on the session lock and run in arrival order; nothing is
// rejected and nothing is dropped.
type Coordinator struct {
	sessions *session.Store
	gen      generator.Generator
	writer   *history.Writer
	timeout  time.Duration
}

// New wires a coordinator. A non-positive timeout falls back to
// DefaultGenerationTimeout. The writer may be nil when history persistence
// is disabled.
func New(sessions *session.Store, gen generator.Generator, writer *history.Writer, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Coordinator{
		sessions: sessions,
		gen:      gen,
		writer:   writer,
		timeout:  timeout,
	}
}

// Submit runs one turn for the session and returns the bot's reply turn.
//
// On generator failure or timeout the user turn stays in the context
// window and nothing is persisted, so a follow-up submission continues the
// conversation rather than resending a duplicate. The session lock is
// released on every path.
func (c *Coordinator) Submit(ctx context.Context, sessionID, userText string, params generator.Params) (chat.Turn, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return chat.Turn{}, newError(KindInvalidInput, "message must not be empty", nil)
	}
	if len([]rune(userText)) > MaxMessageLength {
		return chat.Turn{}, newError(KindInvalidInput, "message exceeds maximum length", nil)
	}
	if err := params.Validate(); err != nil {
		return chat.Turn{}, newError(KindInvalidInput, err.Error(), nil)
	}

	sess := c.sessions.GetOrCreate(sessionID)

	sess.Lock()
	c.sessions.SetInFlight(sess.ID, true)
	defer func() {
		c.sessions.SetInFlight(sess.ID, false)
		sess.Unlock()
	}()

	userTurn := chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      chat.RoleUser,
		Content:   userText,
		CreatedAt: time.Now().UTC(),
	}
	sess.Window.Append(userTurn)

	reply, err := c.generate(ctx, sess.Window.SnapshotForGeneration(), params)
	if err != nil {
		return chat.Turn{}, err
	}

	botTurn := chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      chat.RoleBot,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	}
	sess.Window.Append(botTurn)

	// Enqueued under the session lock, so per-session history order
	// matches submission order.
	if c.writer != nil {
		c.writer.Enqueue(userTurn)
		c.writer.Enqueue(botTurn)
	}

	return botTurn, nil
}

// generate invokes the generator under the configured deadline. The call
// itself cannot be interrupted, so on timeout the pending result is
// abandoned and never reaches the context window.
func (c *Coordinator) generate(ctx context.Context, turns []chat.Turn, params generator.Params) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		reply, err := c.gen.Generate(genCtx, turns, params)
		ch <- result{reply: reply, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return "", newError(KindGenerationTimeout, "generation deadline exceeded", res.err)
			}
			return "", newError(KindGenerationFailed, "generator error", res.err)
		}
		return res.reply, nil
	case <-genCtx.Done():
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", newError(KindGenerationTimeout, "generation deadline exceeded", genCtx.Err())
		}
		return "", newError(KindGenerationFailed, "request cancelled", genCtx.Err())
	}
}
