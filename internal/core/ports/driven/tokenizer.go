package driven

// Tokenizer estimates how many tokens a piece of text costs for a given
// model family. Implementations may be exact (a BPE encoder) or
// approximate; the chat endpoint falls back to a character heuristic when
// no tokenizer is configured for a family.
type Tokenizer interface {
	// CountTokens returns the token count of text for the named model family.
	// family is the value of ModelCapabilities.Family, e.g. "gpt-4o".
	CountTokens(family, text string) (int, error)

	// SupportsFamily reports whether this tokenizer has an encoder for family.
	SupportsFamily(family string) bool
}
