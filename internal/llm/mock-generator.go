package llm

import "context"

// MockGenerator is a Generator for tests. It returns Answer, or Err when set.
// Prompts contains every prompt it was invoked with.
type MockGenerator struct {
	Answer  string
	Err     error
	Prompts []string
}

// Generate records the prompt and returns the canned answer or error.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}
