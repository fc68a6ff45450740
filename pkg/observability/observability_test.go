package observability

import (
	"context"
	"errors"
	"testing"
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, done := p.TrackStage(context.Background(), "propose")
	done(errors.New("boom"))
	p.RecordDecision(ctx, "denied")

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestDefaultConfigDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Fatalf("expected observability disabled by default")
	}
}
