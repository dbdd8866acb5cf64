package domain

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Priority ranks a task on the board.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Task represents a single scheduled item on the board. The identifier is
// supplied by the caller and is the only field the server checks.
type Task struct {
	ID           string       `json:"taskId" yaml:"taskId"`
	Name         string       `json:"taskName" yaml:"taskName"`
	Description  string       `json:"description,omitempty" yaml:"description"`
	StartTime    string       `json:"startTime" yaml:"startTime"`
	EndTime      string       `json:"endTime" yaml:"endTime"`
	Equipment    string       `json:"equipment,omitempty" yaml:"equipment"`
	AssignedTo   string       `json:"assignedTo,omitempty" yaml:"assignedTo"`
	Priority     Priority     `json:"priority,omitempty" yaml:"priority"`
	Dependencies Dependencies `json:"dependencies" yaml:"dependencies"`
}

// Clone returns a copy of t that shares no memory with it.
func (t Task) Clone() Task {
	cp := t
	cp.Dependencies = append(Dependencies{}, t.Dependencies...)
	return cp
}

// Tasks is the id to task association shared by the store and every replica.
// Iteration order has no meaning.
type Tasks map[string]Task

// Clone deep copies the mapping.
func (m Tasks) Clone() Tasks {
	out := make(Tasks, len(m))
	for id, t := range m {
		out[id] = t.Clone()
	}
	return out
}

// Equal reports whether both mappings hold the same ids and records.
func (m Tasks) Equal(other Tasks) bool {
	if len(m) != len(other) {
		return false
	}
	for id, t := range m {
		o, ok := other[id]
		if !ok || !t.Equal(o) {
			return false
		}
	}
	return true
}

// Equal compares every field, dependencies in order.
func (t Task) Equal(o Task) bool {
	if t.ID != o.ID || t.Name != o.Name || t.Description != o.Description ||
		t.StartTime != o.StartTime || t.EndTime != o.EndTime || t.Equipment != o.Equipment ||
		t.AssignedTo != o.AssignedTo || t.Priority != o.Priority {
		return false
	}
	if len(t.Dependencies) != len(o.Dependencies) {
		return false
	}
	for i := range t.Dependencies {
		if t.Dependencies[i] != o.Dependencies[i] {
			return false
		}
	}
	return true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses the timestamp formats accepted by the board UI. Values
// without an offset are read as UTC.
func ParseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var ts time.Time
		ts, err = time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, err
}

// Dependencies lists the ids a task waits on. They are stored as given and
// never resolved.
type Dependencies []string

// UnmarshalJSON accepts either a JSON array or the comma separated string the
// board form submits.
func (d *Dependencies) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var raw string
		if err := sonic.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := Dependencies{}
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*d = out
		return nil
	}
	var list []string
	if err := sonic.Unmarshal(b, &list); err != nil {
		return err
	}
	*d = list
	return nil
}
