// Package tokenizer provides the default driven.Tokenizer: a pure
// character-count heuristic with no per-family encoder. It exists as the
// swappable slot a real BPE-table implementation would occupy; nothing in
// the retrieved pack bundles one, so none is fabricated here.
package tokenizer

import (
	"math"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

const charsPerToken = 4

var _ driven.Tokenizer = (*HeuristicTokenizer)(nil)

// HeuristicTokenizer estimates ceil(len(text)/4) tokens regardless of
// family, and never claims to support any specific one.
type HeuristicTokenizer struct{}

// New returns the character-heuristic tokenizer.
func New() *HeuristicTokenizer {
	return &HeuristicTokenizer{}
}

func (HeuristicTokenizer) CountTokens(_ string, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken)), nil
}

func (HeuristicTokenizer) SupportsFamily(_ string) bool {
	return false
}
