package domain

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTasksCloneDoesNotShareDependencies(t *testing.T) {
	orig := Tasks{"T002": {ID: "T002", Dependencies: []string{"T001"}}}
	cp := orig.Clone()
	cp["T002"].Dependencies[0] = "changed"

	if orig["T002"].Dependencies[0] != "T001" {
		t.Fatalf("clone shares dependency slice with original")
	}
	if orig.Equal(cp) {
		t.Fatalf("expected mappings to differ after mutation")
	}
}

func TestTasksEqualIgnoresOrderOfKeys(t *testing.T) {
	a := Tasks{"1": {ID: "1", Name: "a"}, "2": {ID: "2", Name: "b"}}
	b := Tasks{"2": {ID: "2", Name: "b"}, "1": {ID: "1", Name: "a"}}
	if !a.Equal(b) {
		t.Fatal("expected equal mappings")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-06-23T09:00:00Z", want: time.Date(2024, 6, 23, 9, 0, 0, 0, time.UTC)},
		{in: "2024-06-23T11:00:00+02:00", want: time.Date(2024, 6, 23, 9, 0, 0, 0, time.UTC)},
		{in: "2024-01-01T02:00", want: time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseTime("tomorrow"); err == nil {
		t.Fatal("expected error for unparseable time")
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		if !p.Valid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	if Priority("Urgent").Valid() {
		t.Fatal("unexpected valid priority")
	}
}

func TestDependenciesAcceptFormString(t *testing.T) {
	var task Task
	if err := sonic.Unmarshal([]byte(`{"taskId":"T003","dependencies":"T001, T002,"}`), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(task.Dependencies) != 2 || task.Dependencies[0] != "T001" || task.Dependencies[1] != "T002" {
		t.Fatalf("unexpected dependencies %#v", task.Dependencies)
	}

	if err := sonic.Unmarshal([]byte(`{"taskId":"T003","dependencies":["T009"]}`), &task); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != "T009" {
		t.Fatalf("unexpected dependencies %#v", task.Dependencies)
	}
}
