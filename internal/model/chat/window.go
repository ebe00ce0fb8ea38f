package chat

// DefaultTokenBudget mirrors the model's 800-token context cap.
const DefaultTokenBudget = 800

// runesPerToken is a rough encoding estimate for plain text.
const runesPerToken = 4

// ContextWindow holds the ordered turns of one session and produces the
// trimmed view handed to generation. It is owned by exactly one session and
// must only be mutated while that session's lock is held.
type ContextWindow struct {
	turns  []Turn
	budget int // rune budget derived from the token budget
}

// NewContextWindow creates a window with the given token budget. A budget
// of zero or less falls back to DefaultTokenBudget.
func NewContextWindow(tokenBudget int) *ContextWindow {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &ContextWindow{budget: tokenBudget * runesPerToken}
}

// Append adds a turn to the end of the window.
func (w *ContextWindow) Append(turn Turn) {
	w.turns = append(w.turns, turn)
}

// Len returns the number of stored turns.
func (w *ContextWindow) Len() int {
	return len(w.turns)
}

// Reset empties the window. Idempotent.
func (w *ContextWindow) Reset() {
	w.turns = nil
}

// Turns returns a copy of the full stored sequence.
func (w *ContextWindow) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// SnapshotForGeneration returns the suffix of the stored turns whose
// encoded size fits the budget, dropping oldest turns first. The most
// recent turn is always included: if it alone exceeds the budget its
// content is truncated to the trailing budget-many runes rather than
// dropped, so generation never runs with an empty context. Trimming is
// recomputed from the stored sequence on every call and never mutates it.
func (w *ContextWindow) SnapshotForGeneration() []Turn {
	if len(w.turns) == 0 {
		return nil
	}

	start := len(w.turns)
	remaining := w.budget
	for start > 0 {
		cost := encodedSize(w.turns[start-1])
		if cost > remaining {
			break
		}
		remaining -= cost
		start--
	}

	if start == len(w.turns) {
		// The newest turn alone is over budget; keep its tail.
		last := w.turns[len(w.turns)-1]
		runes := []rune(last.Content)
		last.Content = string(runes[len(runes)-w.budget:])
		return []Turn{last}
	}

	out := make([]Turn, len(w.turns)-start)
	copy(out, w.turns[start:])
	return out
}

func encodedSize(turn Turn) int {
	return len([]rune(turn.Content))
}
