// Package task defines the closed set of generation task kinds that routing
// and provider capability checks key on.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// Task is a symbolic category of generation request.
type Task string

const (
	Parse             Task = "parse"
	Intent            Task = "intent"
	ShortAnswer       Task = "short_answer"
	Chat              Task = "chat"
	ContentGeneration Task = "content_generation"
	SEO               Task = "seo"
	Reasoning         Task = "reasoning"
	VisionDiagnosis   Task = "vision_diagnosis"
)

// ErrUnknownTask is returned by ParseName for names outside the taxonomy.
var ErrUnknownTask = errors.New("unknown task")

var all = []Task{
	Parse,
	Intent,
	ShortAnswer,
	Chat,
	ContentGeneration,
	SEO,
	Reasoning,
	VisionDiagnosis,
}

// All returns every task in declaration order. The slice is a fresh copy.
func All() []Task {
	out := make([]Task, len(all))
	copy(out, all)
	return out
}

// ParseName maps a name (case-insensitive, surrounding space ignored) to a
// Task.
func ParseName(s string) (Task, error) {
	t := Task(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, s)
	}
	return t, nil
}

func (t Task) String() string { return string(t) }

// Valid reports whether t is one of the declared tasks.
func (t Task) Valid() bool {
	for _, k := range all {
		if k == t {
			return true
		}
	}
	return false
}
