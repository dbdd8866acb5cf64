package storage

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"schedule-board/domain"
)

// label decodes either a scalar or a list of strings; lists are joined.
type label string

func (l *label) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*l = label(strings.Join(parts, ", "))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*l = label(s)
	return nil
}

type seedTask struct {
	ID           string   `yaml:"taskId"`
	Name         string   `yaml:"taskName"`
	Description  string   `yaml:"description"`
	StartTime    string   `yaml:"startTime"`
	EndTime      string   `yaml:"endTime"`
	Equipment    label    `yaml:"equipment"`
	AssignedTo   string   `yaml:"assignedTo"`
	Priority     string   `yaml:"priority"`
	Dependencies []string `yaml:"dependencies"`
}

type seedFile struct {
	Tasks     []seedTask `yaml:"tasks"`
	Scheduler struct {
		Tasks []seedTask `yaml:"tasks"`
	} `yaml:"scheduler"`
}

// ParseSeed decodes a YAML or JSON board description. Both a top level
// "tasks" list and the nested "scheduler.tasks" layout are accepted.
func ParseSeed(data []byte) ([]domain.Task, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	entries := append(f.Tasks, f.Scheduler.Tasks...)
	out := make([]domain.Task, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("seed task %d: %w", i, ErrEmptyID)
		}
		deps := domain.Dependencies{}
		deps = append(deps, e.Dependencies...)
		out = append(out, domain.Task{
			ID:           e.ID,
			Name:         e.Name,
			Description:  e.Description,
			StartTime:    e.StartTime,
			EndTime:      e.EndTime,
			Equipment:    string(e.Equipment),
			AssignedTo:   e.AssignedTo,
			Priority:     domain.Priority(e.Priority),
			Dependencies: deps,
		})
	}
	return out, nil
}

// LoadSeed reads and parses the seed file at path.
func LoadSeed(path string) ([]domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}
