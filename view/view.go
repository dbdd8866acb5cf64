// Package view projects the task mapping into chart intervals.
package view

import (
	"sort"
	"time"

	"schedule-board/domain"
)

// Interval is one horizontal bar on the schedule chart.
type Interval struct {
	X        [2]string `json:"x"`
	Y        [2]string `json:"y"`
	Label    string    `json:"label"`
	TaskID   string    `json:"task_id"`
	Duration int       `json:"duration"`
}

// Build returns one interval per task. It never mutates tasks. Intervals are
// ordered by start time, then id; tasks whose start does not parse sort last.
func Build(tasks domain.Tasks) []Interval {
	type keyed struct {
		iv    Interval
		start time.Time
		ok    bool
	}
	rows := make([]keyed, 0, len(tasks))
	for id, t := range tasks {
		start, serr := domain.ParseTime(t.StartTime)
		end, eerr := domain.ParseTime(t.EndTime)
		dur := 0
		if serr == nil && eerr == nil {
			dur = int(end.Sub(start) / time.Hour)
		}
		rows = append(rows, keyed{
			iv: Interval{
				X:        [2]string{t.StartTime, t.EndTime},
				Y:        [2]string{t.Name, t.Name},
				Label:    t.Name,
				TaskID:   id,
				Duration: dur,
			},
			start: start,
			ok:    serr == nil,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.iv.TaskID < b.iv.TaskID
	})
	out := make([]Interval, len(rows))
	for i, r := range rows {
		out[i] = r.iv
	}
	return out
}
