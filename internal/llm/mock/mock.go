// Package mock provides a scripted LanguageModel for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded Complete call.
type Call struct {
	Prompt string
}

// Model returns scripted responses in order and records every prompt.
type Model struct {
	mu        sync.Mutex
	responses []Response
	calls     []Call

	// Fallback, when set, answers calls beyond the script.
	Fallback func(prompt string) (string, error)
}

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

// New creates a model answering with texts in order.
func New(texts ...string) *Model {
	m := &Model{}
	for _, t := range texts {
		m.responses = append(m.responses, Response{Text: t})
	}
	return m
}

// Then appends a scripted response.
func (m *Model) Then(text string, err error) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, Response{Text: text, Err: err})
	return m
}

// Complete returns the next scripted response.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, Call{Prompt: prompt})
	var next *Response
	if n < len(m.responses) {
		next = &m.responses[n]
	}
	fallback := m.Fallback
	m.mu.Unlock()

	if next != nil {
		return next.Text, next.Err
	}
	if fallback != nil {
		return fallback(prompt)
	}
	return "", fmt.Errorf("mock: no response scripted for call %d", n+1)
}

// Calls returns the recorded calls.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
