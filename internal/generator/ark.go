package generator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

const systemPrompt = "You are a friendly conversational assistant. Reply naturally and concisely, continuing the dialogue."

// fallbackReply is returned when the model produces an empty completion.
const fallbackReply = "I'm not sure how to respond to that."

// Ark generates replies through an eino chat model (Ark backend).
type Ark struct {
	chatModel model.ChatModel
	name      string
}

// NewArk wraps an already initialized chat model.
func NewArk(chatModel model.ChatModel, name string) *Ark {
	return &Ark{chatModel: chatModel, name: name}
}

// ModelName reports the configured model identifier.
func (a *Ark) ModelName() string {
	return a.name
}

// Generate maps the context turns onto chat messages and invokes the model
// with the request's sampling options. Top-k is validated upstream but the
// Ark completion API exposes no top-k knob, so it is not forwarded.
func (a *Ark) Generate(ctx context.Context, turns []chat.Turn, params Params) (string, error) {
	messages := make([]*schema.Message, 0, len(turns)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleBot:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}

	response, err := a.chatModel.Generate(ctx, messages,
		model.WithTemperature(float32(params.Temperature)),
		model.WithTopP(float32(params.TopP)),
		model.WithMaxTokens(params.MaxLength),
	)
	if err != nil {
		return "", fmt.Errorf("chat model generate: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		log.Printf("[generator] empty completion from %s, using fallback", a.name)
		reply = fallbackReply
	}
	return reply, nil
}
