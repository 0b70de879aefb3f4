package persona

import (
	"github.com/BioTRaX/Growen-sub001/internal/intent"
)

// Tracker keeps the persona state of one connection. It is not safe for
// concurrent use; each connection owns its own.
type Tracker struct {
	state      *State
	classifier Classifier
}

// NewTracker returns an empty tracker. A nil classifier uses the default.
func NewTracker(c Classifier) *Tracker {
	if c == nil {
		c = DefaultClassifier
	}
	return &Tracker{classifier: c}
}

// State returns a copy of the current state, or nil before the first turn.
func (t *Tracker) State() *State {
	if t.state == nil {
		return nil
	}
	s := *t.state
	return &s
}

// Next selects the persona for a turn and records it as the new prior.
// Product signals during a diagnosis flag the need for a product, so a
// completed diagnosis hands over to SALESMAN on the same turn.
func (t *Tracker) Next(role string, label intent.Label, text string, hasImage bool) Mode {
	prior := t.State()
	if prior != nil && prior.Mode.cultivating() &&
		(label.ProductPath() || t.classifier.Classify(text).Product) {
		prior.NeedsProduct = true
	}

	mode := Select(Input{
		Role:       role,
		Intent:     label,
		Text:       text,
		HasImage:   hasImage,
		Prior:      prior,
		Classifier: t.classifier,
	})

	next := State{Mode: mode}
	if prior != nil && mode.cultivating() {
		next.DiagnosisComplete = prior.DiagnosisComplete
		next.NeedsProduct = prior.NeedsProduct
	}
	t.state = &next
	return mode
}

// Complete marks the current diagnosis as finished once a CULTIVATOR turn
// has been answered.
func (t *Tracker) Complete() {
	if t.state == nil {
		return
	}
	if t.state.Mode.cultivating() {
		t.state.DiagnosisComplete = true
	}
}

// Reset forgets the prior state.
func (t *Tracker) Reset() { t.state = nil }
