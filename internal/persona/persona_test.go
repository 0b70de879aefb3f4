package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BioTRaX/Growen-sub001/internal/intent"
)

func TestSelect_ElevatedRolesGetAssistant(t *testing.T) {
	for _, role := range []string{"admin", "colaborador"} {
		assert.Equal(t, Assistant, Select(Input{Role: role, Text: "mi planta tiene hojas amarillas"}))
		assert.Equal(t, Assistant, Select(Input{Role: role, Prior: &State{Mode: Cultivator}, HasImage: true}))
	}
}

func TestSelect_FreshClassification(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Mode
	}{
		{"greeting", Input{Role: "cliente", Text: "Hola!"}, Observer},
		{"long greeting with symptoms", Input{Role: "cliente", Text: "hola, mi planta tiene hojas amarillas"}, Cultivator},
		{"diagnostic", Input{Role: "cliente", Text: "tengo una plaga en el cultivo"}, Cultivator},
		{"image", Input{Role: "guest", Text: "mirá", HasImage: true}, CultivatorVision},
		{"product", Input{Role: "cliente", Text: "cuánto cuesta el sustrato"}, Salesman},
		{"intent label", Input{Role: "cliente", Text: "¿qué onda esto?", Intent: intent.Diagnosis}, Cultivator},
		{"price intent", Input{Role: "cliente", Text: "FERT_0028_MIN", Intent: intent.Price}, Salesman},
		{"general", Input{Role: "cliente", Text: "¿abren los domingos?"}, Observer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Select(tc.in))
		})
	}
}

func TestSelect_StickyModes(t *testing.T) {
	cult := &State{Mode: Cultivator}
	assert.Equal(t, Cultivator, Select(Input{Role: "cliente", Text: "hola", Prior: cult}))
	assert.Equal(t, Cultivator, Select(Input{Role: "cliente", Text: "cuánto cuesta el sustrato", Prior: cult}))
	assert.Equal(t, CultivatorVision, Select(Input{Role: "cliente", Text: "mirá", HasImage: true, Prior: cult}))

	vision := &State{Mode: CultivatorVision}
	assert.Equal(t, Cultivator, Select(Input{Role: "cliente", Text: "y ahora?", Prior: vision}))

	sales := &State{Mode: Salesman}
	assert.Equal(t, Salesman, Select(Input{Role: "cliente", Text: "mis hojas están amarillas", Prior: sales}))

	observer := &State{Mode: Observer}
	assert.Equal(t, Cultivator, Select(Input{Role: "cliente", Text: "mis hojas están amarillas", Prior: observer}))
}

func TestSelect_DiagnosisHandsOverToSales(t *testing.T) {
	done := &State{Mode: Cultivator, DiagnosisComplete: true, NeedsProduct: true}
	assert.Equal(t, Salesman, Select(Input{Role: "cliente", Text: "dale", Prior: done}))
	assert.Equal(t, CultivatorVision, Select(Input{Role: "cliente", Text: "otra foto", HasImage: true, Prior: done}))

	notDone := &State{Mode: Cultivator, NeedsProduct: true}
	assert.Equal(t, Cultivator, Select(Input{Role: "cliente", Text: "dale", Prior: notDone}))
}

type stubClassifier Signals

func (s stubClassifier) Classify(string) Signals { return Signals(s) }

func TestSelect_CustomClassifier(t *testing.T) {
	in := Input{Role: "cliente", Text: "anything", Classifier: stubClassifier{Product: true}}
	assert.Equal(t, Salesman, Select(in))
}

func TestKeywordClassifier_FoldsAccents(t *testing.T) {
	k := KeywordClassifier{Diagnostics: []string{"raíz"}, Products: []string{"envío"}}
	assert.True(t, k.Classify("la RAIZ está marrón").Diagnostic)
	assert.True(t, k.Classify("hacen envio?").Product)
	assert.False(t, k.Classify("raizal").Diagnostic, "whole words only")
}

func TestTemplates(t *testing.T) {
	for _, m := range []Mode{Observer, Cultivator, CultivatorVision, Salesman, Assistant} {
		assert.NotEmpty(t, Template(m), m)
	}
	custom := Templates{Salesman: "custom"}
	assert.Equal(t, "custom", custom.Template(Salesman))
	assert.Equal(t, DefaultTemplates[Cultivator], custom.Template(Cultivator))
	assert.Equal(t, DefaultTemplates[Observer], custom.Template(Mode("UNKNOWN")))
}

func TestTracker(t *testing.T) {
	tr := NewTracker(nil)
	assert.Nil(t, tr.State())

	assert.Equal(t, Cultivator, tr.Next("cliente", intent.Diagnosis, "mi planta tiene hojas amarillas", false))
	tr.Complete()
	assert.True(t, tr.State().DiagnosisComplete)

	assert.Equal(t, Salesman, tr.Next("cliente", intent.General, "¿qué fertilizante me recomendás?", false))
	assert.False(t, tr.State().DiagnosisComplete)
	assert.Equal(t, Salesman, tr.Next("cliente", intent.Diagnosis, "y las hojas secas?", false), "sales is sticky")

	tr.Reset()
	assert.Equal(t, Observer, tr.Next("cliente", intent.Greeting, "hola", false))
}

func TestTracker_StateIsACopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.Next("cliente", intent.Diagnosis, "hojas amarillas", false)
	s := tr.State()
	s.Mode = Salesman
	assert.Equal(t, Cultivator, tr.State().Mode)
}
