// Package persona picks the conversational persona for each chat turn and
// supplies its system prompt.
//
// Selection is a pure function of the caller role, the turn content and
// the previous turn's state. A Tracker holds that state for one connection.
package persona

import (
	"strings"

	"github.com/BioTRaX/Growen-sub001/internal/intent"
	"github.com/BioTRaX/Growen-sub001/internal/textutil"
	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

// Mode is a persona.
type Mode string

const (
	Observer         Mode = "OBSERVER"
	Cultivator       Mode = "CULTIVATOR"
	CultivatorVision Mode = "CULTIVATOR_VISION"
	Salesman         Mode = "SALESMAN"
	Assistant        Mode = "ASSISTANT"
)

func (m Mode) cultivating() bool { return m == Cultivator || m == CultivatorVision }

// State is carried from one turn to the next.
type State struct {
	Mode              Mode
	DiagnosisComplete bool
	NeedsProduct      bool
}

// Input is everything Select looks at.
type Input struct {
	Role     string
	Intent   intent.Label
	Text     string
	HasImage bool
	Prior    *State
	// Classifier defaults to DefaultClassifier.
	Classifier Classifier
}

// Select returns the persona for a turn. Rules, first match wins:
//  1. elevated roles get ASSISTANT;
//  2. a finished diagnosis that needs a product moves to SALESMAN
//     (CULTIVATOR_VISION when a new image arrives);
//  3. CULTIVATOR and SALESMAN are sticky, an image upgrades CULTIVATOR;
//  4. otherwise the turn is classified fresh.
func Select(in Input) Mode {
	if contracts.IsElevated(in.Role) {
		return Assistant
	}

	if p := in.Prior; p != nil {
		prior := p.Mode
		if prior == CultivatorVision {
			prior = Cultivator
		}
		if prior == Cultivator && p.DiagnosisComplete && p.NeedsProduct {
			if in.HasImage {
				return CultivatorVision
			}
			return Salesman
		}
		switch prior {
		case Cultivator:
			if in.HasImage {
				return CultivatorVision
			}
			return Cultivator
		case Salesman:
			return Salesman
		}
	}

	c := in.Classifier
	if c == nil {
		c = DefaultClassifier
	}
	sig := c.Classify(in.Text)
	switch in.Intent {
	case intent.Diagnosis:
		sig.Diagnostic = true
	case intent.Price, intent.Product:
		sig.Product = true
	}

	switch {
	case sig.Greeting && !sig.Diagnostic && !sig.Product && !in.HasImage:
		return Observer
	case sig.Diagnostic || in.HasImage:
		if in.HasImage {
			return CultivatorVision
		}
		return Cultivator
	case sig.Product:
		return Salesman
	}
	return Observer
}

// Signals are the features a Classifier extracts from a turn.
type Signals struct {
	Greeting   bool
	Diagnostic bool
	Product    bool
}

// Classifier extracts persona signals from raw text.
type Classifier interface {
	Classify(text string) Signals
}

// KeywordClassifier matches whole keywords against accent-folded text.
// Keywords may be written with accents.
type KeywordClassifier struct {
	Greetings   []string
	Diagnostics []string
	Products    []string
}

// DefaultClassifier uses the built-in Spanish keyword sets.
var DefaultClassifier Classifier = KeywordClassifier{
	Greetings: []string{"hola", "buenas", "buen día", "buenos días", "buenas tardes", "buenas noches", "qué tal", "holis"},
	Diagnostics: []string{
		"hoja", "hojas", "amarilla", "amarillas", "mancha", "manchas", "plaga", "hongo", "raíz", "raíces",
		"riego", "regar", "poda", "floración", "cultivo", "planta", "plantas", "esqueje", "germinar",
		"deficiencia", "carencia", "quemada", "seca", "marchita", "ph", "ec",
	},
	Products: []string{
		"precio", "cuesta", "sale", "comprar", "stock", "tenés", "tienen", "venden", "producto",
		"fertilizante", "sustrato", "maceta", "envío", "oferta",
	},
}

func (k KeywordClassifier) Classify(text string) Signals {
	n := " " + textutil.Normalize(text) + " "
	words := len(strings.Fields(n))
	return Signals{
		Greeting:   words <= 4 && matchAny(n, k.Greetings),
		Diagnostic: matchAny(n, k.Diagnostics),
		Product:    matchAny(n, k.Products),
	}
}

func matchAny(padded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(padded, " "+textutil.Normalize(kw)+" ") {
			return true
		}
	}
	return false
}
