package news

import (
	"context"
	"fmt"
)

// Headline is a story produced by an external text generator. An empty
// Symbol means market-wide news.
type Headline struct {
	Text   string  `json:"headline"`
	Symbol string  `json:"symbol"`
	Impact float64 `json:"impact"`
}

// Generator produces headlines from an external service.
type Generator interface {
	Generate(ctx context.Context) (Headline, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) (Headline, error)

func (f GeneratorFunc) Generate(ctx context.Context) (Headline, error) { return f(ctx) }

// ExternalServiceError wraps a generator failure. The engine recovers from it
// with a templated headline; it is only ever logged.
type ExternalServiceError struct {
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("headline generator: %v", e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
