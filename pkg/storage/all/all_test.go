package all

import (
	"context"
	"errors"
	"testing"

	"github.com/nicktill/techboard/pkg/storage"
)

func TestAllKindsRegistered(t *testing.T) {
	kinds := storage.Kinds()
	want := []string{"badger", "memory", "postgres", "sqlite"}
	if len(kinds) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Kinds()[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := storage.New(context.Background(), storage.Config{Kind: "oracle"})
	if !errors.Is(err, storage.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
