package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
)

func TestGetJob_FromIndex(t *testing.T) {
	env := newTestEnv(t)
	id := identity.Encode(testURL)
	if err := env.index.Upsert(context.Background(), &domain.JobRecord{ID: id, SourceURL: testURL, Status: domain.StateProcessing}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	view, err := NewGetJobUsecase(env.store, env.index, zap.NewNop()).Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.SourceURL != testURL {
		t.Errorf("expected decoded url, got %q", view.SourceURL)
	}
	if view.Record == nil || view.Record.Status != domain.StateProcessing {
		t.Errorf("expected index record, got %+v", view.Record)
	}
	if view.HasFrames || view.HasFinal {
		t.Error("expected no artifacts")
	}
}

func TestGetJob_FromArtifacts(t *testing.T) {
	env := newTestEnv(t)
	id := env.withFinal(t, testURL, 2)

	view, err := NewGetJobUsecase(env.store, env.index, zap.NewNop()).Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.HasFinal || view.HasFrames {
		t.Errorf("unexpected artifact flags %+v", view)
	}
	if view.Title != "Seeded" {
		t.Errorf("expected title from layout, got %q", view.Title)
	}
	if view.Record != nil {
		t.Error("expected no index record")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t)
	uc := NewGetJobUsecase(env.store, env.index, zap.NewNop())

	_, err := uc.Execute(context.Background(), identity.Encode("https://example.com/unknown"))
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGetJob_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	uc := NewGetJobUsecase(env.store, env.index, zap.NewNop())

	_, err := uc.Execute(context.Background(), "%%%")
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestGetJob_IndexErrorIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	id := env.withCandidates(t, testURL, 1)
	env.index.GetByIDFn = func(ctx context.Context, id string) (*domain.JobRecord, error) {
		return nil, errors.New("postgres: connection refused")
	}

	view, err := NewGetJobUsecase(env.store, env.index, zap.NewNop()).Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.HasFrames {
		t.Error("expected candidate frames")
	}
}
