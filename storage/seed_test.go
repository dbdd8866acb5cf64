package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const jsonSeed = `{
  "scheduler": {
    "tasks": [
      {
        "taskId": "T001",
        "taskName": "Sample Preparation",
        "description": "Prepare samples for analysis",
        "startTime": "2024-06-23T09:00:00Z",
        "endTime": "2024-06-23T10:00:00Z",
        "equipment": ["Centrifuge", "Pipette"],
        "assignedTo": "John Doe",
        "priority": "High",
        "dependencies": []
      },
      {
        "taskId": "T002",
        "taskName": "DNA Extraction",
        "startTime": "2024-06-23T10:30:00Z",
        "endTime": "2024-06-23T12:00:00Z",
        "equipment": "DNA Extractor",
        "priority": "Medium",
        "dependencies": ["T001"]
      }
    ]
  }
}`

func TestParseSeedNestedJSON(t *testing.T) {
	tasks, err := ParseSeed([]byte(jsonSeed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Equipment != "Centrifuge, Pipette" {
		t.Fatalf("equipment list not joined: %q", tasks[0].Equipment)
	}
	if tasks[1].Equipment != "DNA Extractor" || tasks[1].Dependencies[0] != "T001" {
		t.Fatalf("unexpected second task %+v", tasks[1])
	}
}

func TestLoadSeedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	data := []byte("tasks:\n  - taskId: T010\n    taskName: PCR Amplification\n    priority: Low\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	tasks, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "T010" || tasks[0].Name != "PCR Amplification" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestParseSeedRequiresID(t *testing.T) {
	_, err := ParseSeed([]byte("tasks:\n  - taskName: nameless\n"))
	if !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
}
