package fallback

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// Classifier asks the primary classifier first and falls back to a local
// one on any primary failure. A nil primary always uses the fallback.
type Classifier struct {
	primary    ports.DocumentClassifier
	fallback   ports.DocumentClassifier
	onFallback func(error)
}

type Option func(*Classifier)

// WithFallbackHook is called with the primary error every time the fallback is used.
func WithFallbackHook(fn func(error)) Option {
	return func(c *Classifier) {
		c.onFallback = fn
	}
}

func New(primary, fallback ports.DocumentClassifier, opts ...Option) *Classifier {
	c := &Classifier{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if c.primary == nil {
		return c.fallback.Classify(ctx, text)
	}

	cls, err := c.primary.Classify(ctx, text)
	if err == nil {
		return cls, nil
	}
	if ctx.Err() != nil {
		return domain.Classification{}, err
	}

	slog.Warn("classifier_fallback", slog.String("error", err.Error()))
	if c.onFallback != nil {
		c.onFallback(err)
	}
	return c.fallback.Classify(ctx, text)
}
