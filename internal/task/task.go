// Package task decides which input row to show next.
package task

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/oleg578/localturk"
)

// Stats describes progress through a tasks file.
type Stats struct {
	// Task is the first task without a matching output, or the zero
	// RowObject when every task is done.
	Task         localturk.RowObject
	NumCompleted int
	NumTotal     int
}

// Done reports whether no task is left.
func (s Stats) Done() bool {
	return s.Task.OrderedMap == nil
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeValues returns a copy of row with CRLF and CR in values turned
// into LF.
func NormalizeValues(row localturk.RowObject) localturk.RowObject {
	out := localturk.NewRowObject()
	for k, v := range row.Fields() {
		out.Set(k, newlines.Replace(v))
	}
	return out
}

// IsSupersetOf reports whether every key of b is in a with the same value.
func IsSupersetOf(a, b localturk.RowObject) bool {
	for k, v := range b.Fields() {
		if !a.Has(k) || a.Value(k) != v {
			return false
		}
	}
	return true
}

// IsCompleted reports whether some completed row holds all of task's values.
// Browsers submit line breaks as CRLF, so values are compared with newlines
// normalized.
func IsCompleted(task localturk.RowObject, completed []localturk.RowObject) bool {
	want := NormalizeValues(task)
	for _, row := range completed {
		if IsSupersetOf(NormalizeValues(row), want) {
			return true
		}
	}
	return false
}

// LoadCompleted reads every row of the outputs file. A missing file has no
// rows.
func LoadCompleted(path string) ([]localturk.RowObject, error) {
	rows, err := localturk.ReadAllRowObjects(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

// Next streams the tasks file and returns the first task not yet in the
// outputs file, along with progress counts.
func Next(tasksPath, outputsPath string) (Stats, error) {
	completed, err := LoadCompleted(outputsPath)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{NumCompleted: len(completed)}
	for row, err := range localturk.ReadRowObjects(tasksPath) {
		if err != nil {
			return Stats{}, err
		}
		stats.NumTotal++
		if stats.Done() && !IsCompleted(row, completed) {
			stats.Task = row
		}
	}
	return stats, nil
}
