package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Label
	}{
		{"¿Cuánto cuesta FERT_0028_MIN?", Price},
		{"precio del sustrato de coco", Price},
		{"hola, ¿a cuánto está la perlita?", Price},
		{"¿Tenés perlita?", Product},
		{"INT-28", Product},
		{"mi planta tiene hojas amarillas", Diagnosis},
		{"creo que tiene una plaga", Diagnosis},
		{"Hola!", Greeting},
		{"buenas tardes", Greeting},
		{"¿cómo riego en invierno?", General},
		{"", General},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), tc.text)
	}
	assert.True(t, Price.ProductPath())
	assert.True(t, Product.ProductPath())
	assert.False(t, Diagnosis.ProductPath())
}

func TestExtractQuery(t *testing.T) {
	cases := map[string]string{
		"¿Cuánto cuesta FERT_0028_MIN?":         "FERT_0028_MIN",
		"cuánto cuesta el sustrato de coco?":    "sustrato de coco",
		"precio de la perlita":                  "perlita",
		"hola, ¿a cuánto está el fertilizante?": "fertilizante",
		"tenés macetas textiles?":               "macetas textiles",
		"fertilizante":                          "fertilizante",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractQuery(in), in)
	}
}

func TestConfirmationAndNegation(t *testing.T) {
	for _, s := range []string{"sí", "Si", "dale", "ok", "sí gracias"} {
		assert.True(t, IsConfirmation(s), s)
		assert.False(t, IsNegation(s), s)
	}
	for _, s := range []string{"no", "No, gracias", "ninguno"} {
		assert.True(t, IsNegation(s), s)
		assert.False(t, IsConfirmation(s), s)
	}
	assert.False(t, IsConfirmation("sí, pero el de coco"))
}

func TestIsAcknowledgement(t *testing.T) {
	for _, s := range []string{"gracias", "ok dale", "Muchas gracias!", "genial, gracias", "listo 👍"} {
		assert.True(t, IsAcknowledgement(s), s)
	}
	for _, s := range []string{"", "el de coco", "ok el segundo", "gracias, y el mineral?"} {
		assert.False(t, IsAcknowledgement(s), s)
	}
}

func TestSelectionIndex(t *testing.T) {
	assert.Equal(t, 0, SelectionIndex("1", 3))
	assert.Equal(t, 1, SelectionIndex("el segundo", 3))
	assert.Equal(t, 2, SelectionIndex("opción 3", 3))
	assert.Equal(t, -1, SelectionIndex("4", 3))
	assert.Equal(t, -1, SelectionIndex("quiero el de coco por favor", 3))
	assert.Equal(t, -1, SelectionIndex("", 3))
}

func TestRedactSKUs(t *testing.T) {
	assert.Equal(t, "El Fertilizante Mineral cuesta $5.500.",
		RedactSKUs("El Fertilizante Mineral (SKU: FERT_0028_MIN) cuesta $5.500."))
	assert.Equal(t, "Perlita, $2.100", RedactSKUs("Perlita PRV-PERL-5, $2.100"))
	assert.Equal(t, "sin códigos acá", RedactSKUs("sin códigos acá"))
}
