// Package history persists the durable, append-only turn log. It is
// independent of in-memory session state: resetting a session never touches
// records stored here.
package history

import (
	"context"
	"time"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

// DefaultReadLimit bounds history reads when the caller gives no limit.
const DefaultReadLimit = 50

// Store is an append-only log of turns keyed by session id. Reads return
// the most recent turns in oldest-first order. An unknown session id yields
// an empty result, not an error.
type Store interface {
	Append(ctx context.Context, turn chat.Turn) error
	Read(ctx context.Context, sessionID string, limit int) ([]chat.Turn, error)
}

// Exchange pairs a user turn with the bot reply that followed it.
type Exchange struct {
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
}

// PairExchanges folds an oldest-first turn sequence into user/bot
// exchanges. A user turn with no recorded reply (generation failed, or the
// log was cut mid-turn) produces an exchange with an empty response.
func PairExchanges(turns []chat.Turn) []Exchange {
	exchanges := make([]Exchange, 0, len(turns)/2)
	for i := 0; i < len(turns); i++ {
		if turns[i].Role != chat.RoleUser {
			continue
		}
		exchange := Exchange{
			UserMessage: turns[i].Content,
			Timestamp:   turns[i].CreatedAt,
		}
		if i+1 < len(turns) && turns[i+1].Role == chat.RoleBot {
			exchange.BotResponse = turns[i+1].Content
			i++
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges
}
