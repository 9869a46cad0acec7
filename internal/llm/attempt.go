package llm

import (
	"context"
)

// Candidate is one (provider, model) pair to try
type Candidate struct {
	Provider string
	Model    string
}

// TryInOrder runs fn over the candidates in order and returns the first
// success together with the failures that preceded it. When every candidate
// fails the full log is returned with an *ExhaustedFallbackError. A done
// context stops the walk and its error is returned unchanged.
func TryInOrder[T any](ctx context.Context, candidates []Candidate, fn func(context.Context, Candidate) (T, error)) (T, AttemptLog, error) {
	var zero T
	var log AttemptLog

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, log, err
		}

		value, err := fn(ctx, candidate)
		if err == nil {
			return value, log, nil
		}

		log = append(log, Attempt{Provider: candidate.Provider, Model: candidate.Model, Err: err})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, log, ctxErr
		}
	}

	provider := ""
	if len(candidates) > 0 {
		provider = candidates[0].Provider
	}
	return zero, log, &ExhaustedFallbackError{Provider: provider, Attempts: log}
}

// candidateList builds [primary, fallbacks...] for one provider, dropping
// empty and repeated model identifiers while keeping first-seen order.
func candidateList(provider, primary string, fallbacks []string) []Candidate {
	seen := make(map[string]bool, len(fallbacks)+1)
	candidates := make([]Candidate, 0, len(fallbacks)+1)
	for _, model := range append([]string{primary}, fallbacks...) {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		candidates = append(candidates, Candidate{Provider: provider, Model: model})
	}
	return candidates
}
