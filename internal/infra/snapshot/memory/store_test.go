package memory

import (
	"context"
	"errors"
	"testing"

	"obscore/internal/errs"
)

func TestSaveOverwritesAndCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	payload := []byte("v1")
	if err := s.Save(ctx, "k", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	payload[0] = 'x'
	got, err := s.Load(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Load: %q %v", got, err)
	}
	if err := s.Save(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, _ = s.Load(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if keys := s.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestLoadMissingAndEmptyKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, errs.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	if err := s.Save(ctx, "", nil); err == nil {
		t.Fatalf("expected empty key error")
	}
}
