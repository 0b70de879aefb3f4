package task_test

import (
	"errors"
	"testing"

	"github.com/BioTRaX/Growen-sub001/internal/task"
)

func TestParseName(t *testing.T) {
	for _, k := range task.All() {
		got, err := task.ParseName(" " + string(k) + " ")
		if err != nil {
			t.Fatalf("ParseName(%q) error: %v", k, err)
		}
		if got != k {
			t.Errorf("ParseName(%q) = %q", k, got)
		}
	}

	if got, err := task.ParseName("VISION_DIAGNOSIS"); err != nil || got != task.VisionDiagnosis {
		t.Errorf("ParseName is not case-insensitive: %q, %v", got, err)
	}
}

func TestParseName_Unknown(t *testing.T) {
	_, err := task.ParseName("translate")
	if !errors.Is(err, task.ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := task.All()
	if len(a) != 8 {
		t.Fatalf("expected 8 tasks, got %d", len(a))
	}
	a[0] = "mutated"
	if task.All()[0] != task.Parse {
		t.Error("All() leaked its backing array")
	}
}
