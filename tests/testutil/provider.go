package testutil

import (
	"context"
	"strings"
	"sync"
)

// FakeProvider is a completion.Provider whose replies are chosen by the
// Respond function. It records every prompt it receives.
type FakeProvider struct {
	Respond func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// Reply returns a FakeProvider that always answers text.
func Reply(text string) *FakeProvider {
	return &FakeProvider{Respond: func(context.Context, string) (string, error) {
		return text, nil
	}}
}

// ReplyBySubject answers with the first reply whose key occurs in the
// prompt, or fallback.
func ReplyBySubject(replies map[string]string, fallback string) *FakeProvider {
	return &FakeProvider{Respond: func(_ context.Context, prompt string) (string, error) {
		for key, text := range replies {
			if strings.Contains(prompt, key) {
				return text, nil
			}
		}
		return fallback, nil
	}}
}

func (p *FakeProvider) Name() string { return "fake" }

func (p *FakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Respond(ctx, prompt)
}

// Prompts returns the prompts received so far.
func (p *FakeProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}
