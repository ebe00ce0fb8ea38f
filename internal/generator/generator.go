package generator

import (
	"context"
	"fmt"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

// Params are per-request sampling parameters. Out-of-range values are
// rejected, never clamped.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxLength   int     `json:"max_length"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
}

// DefaultParams returns the sampling defaults applied when a request omits
// a parameter.
func DefaultParams() Params {
	return Params{
		Temperature: 0.7,
		MaxLength:   1000,
		TopK:        50,
		TopP:        0.95,
	}
}

// Validate checks every parameter against its documented range.
func (p Params) Validate() error {
	if p.Temperature < 0.1 || p.Temperature > 1.0 {
		return fmt.Errorf("temperature %.2f out of range [0.1, 1.0]", p.Temperature)
	}
	if p.MaxLength < 100 || p.MaxLength > 2000 {
		return fmt.Errorf("max_length %d out of range [100, 2000]", p.MaxLength)
	}
	if p.TopK < 10 || p.TopK > 100 {
		return fmt.Errorf("top_k %d out of range [10, 100]", p.TopK)
	}
	if p.TopP < 0.1 || p.TopP > 1.0 {
		return fmt.Errorf("top_p %.2f out of range [0.1, 1.0]", p.TopP)
	}
	return nil
}

// Generator produces a reply from an ordered context of prior turns. Calls
// may take arbitrarily long and cannot be interrupted mid-generation; the
// coordinator enforces deadlines around it.
type Generator interface {
	Generate(ctx context.Context, turns []chat.Turn, params Params) (string, error)
	ModelName() string
}
