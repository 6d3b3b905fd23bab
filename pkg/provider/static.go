package provider

import (
	"context"
	"encoding/json"

	"github.com/jdziat/govbench/pkg/types"
)

// Static answers every request with the same text. It backs dry runs and
// offline smoke tests.
type Static struct {
	Text string
}

// Provider returns the backend name.
func (s *Static) Provider() string {
	return string(KindStatic)
}

// Chat returns s.Text.
func (s *Static) Chat(ctx context.Context, _ []types.Message, _ float64, _ int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(map[string]string{"text": s.Text})
	return &Result{Text: s.Text, Raw: raw, FinishReason: "stop"}, nil
}
