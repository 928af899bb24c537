package services_test

import (
	"context"
	"testing"

	"github.com/MY221B/bird-download/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithLocation(ctx, "olympic-park")
	ctx = services.WithSlug(ctx, "red_flanked_bluetail")
	ctx = services.WithStage(ctx, "converge")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.LocationFromContext(ctx); !ok || id != "olympic-park" {
		t.Fatalf("unexpected location: %v %v", id, ok)
	}
	if slug, ok := services.SlugFromContext(ctx); !ok || slug != "red_flanked_bluetail" {
		t.Fatalf("unexpected slug: %v %v", slug, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "converge" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
