package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"schedule-board/domain"
)

func TestTaskEntityRoundTrip(t *testing.T) {
	task := domain.Task{
		ID:           "T002",
		Name:         "DNA Extraction",
		StartTime:    "2024-06-23T10:30:00Z",
		EndTime:      "2024-06-23T12:00:00Z",
		Equipment:    "DNA Extractor",
		AssignedTo:   "Jane Smith",
		Priority:     domain.PriorityMedium,
		Dependencies: []string{"T001"},
	}
	payload, err := encodeTaskEntity(task, 42)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if raw["PartitionKey"] != boardPartition || raw["RowKey"] != "T002" {
		t.Fatalf("unexpected keys %v / %v", raw["PartitionKey"], raw["RowKey"])
	}
	if raw["Dependencies"] != `["T001"]` {
		t.Fatalf("dependencies should be stored as a string, got %#v", raw["Dependencies"])
	}

	got, err := decodeTaskEntity(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(task) {
		t.Fatalf("decoded %+v, want %+v", got, task)
	}
}

func TestDecodeTaskEntityWithoutDependencies(t *testing.T) {
	data := []byte(`{"PartitionKey":"board","RowKey":"T9","TaskName":"Data Analysis","Priority":"Low"}`)
	got, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "T9" || got.Name != "Data Analysis" || got.Priority != domain.PriorityLow || len(got.Dependencies) != 0 {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestRowKeyEncodesInvalidIDs(t *testing.T) {
	if got := rowKey("T002"); got != "T002" {
		t.Fatalf("plain id changed: %q", got)
	}
	seen := map[string]string{}
	for _, id := range []string{"a/b", `a\b`, "a#b", "a?b", "tab\tid", "b64:x", "T002"} {
		key := rowKey(id)
		if key != "T002" && !strings.HasPrefix(key, encodedKeyPrefix) {
			t.Fatalf("rowKey(%q) = %q was not encoded", id, key)
		}
		if strings.IndexFunc(key, invalidKeyRune) >= 0 {
			t.Fatalf("rowKey(%q) = %q still has invalid characters", id, key)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("rowKey collision between %q and %q", prev, id)
		}
		seen[key] = id

		payload, err := encodeTaskEntity(domain.Task{ID: id, Name: "N"}, 1)
		if err != nil {
			t.Fatalf("encode %q: %v", id, err)
		}
		got, err := decodeTaskEntity(payload)
		if err != nil || got.ID != id {
			t.Fatalf("decode %q: got %q err=%v", id, got.ID, err)
		}
	}
}

func TestNewTableStoreRequiresConfig(t *testing.T) {
	if _, err := NewTableStore("", "tasks"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewQueueExporter("UseDevelopmentStorage=true", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
