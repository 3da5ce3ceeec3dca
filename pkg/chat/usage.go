package chat

// TokenUsage tracks token consumption for one invocation.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add accumulates another usage sample. A zero TotalTokens on the sample is derived from its
// input and output counts.
func (u *TokenUsage) Add(other TokenUsage) {
	total := other.TotalTokens
	if total == 0 {
		total = other.InputTokens + other.OutputTokens
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += total
}
