package feed

import (
	"testing"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
)

func TestAttemptsTranslateToRetries(t *testing.T) {
	// Three total attempts mean two retries after the first try.
	cfg := &config.Config{}
	cfg.Feed.Attempts = 3

	c := New(cfg)
	if c.api.RetryMax != 2 {
		t.Errorf("api RetryMax = %d, want 2", c.api.RetryMax)
	}
	if c.binary.RetryMax != 2 {
		t.Errorf("binary RetryMax = %d, want 2", c.binary.RetryMax)
	}

	// A zero/unset attempt count never goes negative.
	cfg.Feed.Attempts = 0
	if got := New(cfg).api.RetryMax; got != 0 {
		t.Errorf("RetryMax = %d, want 0 for unset attempts", got)
	}
}
