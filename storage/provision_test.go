package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func TestAlreadyExists(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", &azcore.ResponseError{ErrorCode: queueAlreadyExists, StatusCode: 409})
	if !alreadyExists(wrapped, queueAlreadyExists) {
		t.Fatal("expected wrapped conflict to match")
	}
	if alreadyExists(wrapped, "TableAlreadyExists") {
		t.Fatal("different code must not match")
	}
	if alreadyExists(errors.New("boom"), queueAlreadyExists) {
		t.Fatal("plain error must not match")
	}
}

func TestEnsureRequiresConnection(t *testing.T) {
	if err := EnsureTables(context.Background(), "", "tasks"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := EnsureQueues(context.Background(), "", "changes"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
