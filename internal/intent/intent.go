// Package intent labels inbound chat turns and parses follow-up replies.
// Matching is keyword based over accent-folded text.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BioTRaX/Growen-sub001/internal/textutil"
)

// Label is the coarse intent of a turn.
type Label string

const (
	Price     Label = "price"
	Product   Label = "product"
	Diagnosis Label = "diagnosis"
	Greeting  Label = "greeting"
	General   Label = "general"
)

// ProductPath reports whether the label is served by the product lookup path.
func (l Label) ProductPath() bool { return l == Price || l == Product }

var (
	pricePhrases = []string{
		"cuanto cuesta", "cuanto sale", "cuanto vale", "cuanto esta", "a cuanto",
		"que precio", "precio", "precios", "valor de", "cotizacion",
	}
	productPhrases = []string{
		"tenes", "tienen", "hay stock", "stock de", "venden", "vendes",
		"busco", "necesito comprar", "quiero comprar", "disponible", "disponibilidad",
		"producto", "sku",
	}
	diagnosisPhrases = []string{
		"hojas amarillas", "hojas secas", "manchas", "plaga", "plagas", "hongo", "hongos",
		"se me muere", "se esta muriendo", "se seca", "quemadas", "puntas", "marchita",
		"que le pasa", "deficiencia", "carencia", "oidio", "arana roja", "trips", "pulgon",
	}
	greetingWords = []string{
		"hola", "buenas", "buen dia", "buenos dias", "buenas tardes", "buenas noches",
		"hey", "holis", "que tal",
	}
)

// Classify labels text. Price wins over product, product over diagnosis.
func Classify(text string) Label {
	n := textutil.Normalize(text)
	if n == "" {
		return General
	}
	switch {
	case containsAny(n, pricePhrases):
		return Price
	case containsAny(n, productPhrases) || skuLike.MatchString(text):
		return Product
	case containsAny(n, diagnosisPhrases):
		return Diagnosis
	case IsGreeting(n):
		return Greeting
	}
	return General
}

// IsGreeting reports a short message made of a greeting and little else.
func IsGreeting(text string) bool {
	n := textutil.Normalize(text)
	if len(strings.Fields(n)) > 4 {
		return false
	}
	return containsAny(n, greetingWords)
}

func containsAny(normalized string, phrases []string) bool {
	padded := " " + normalized + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// skuLike matches codes such as FERT_0028_MIN or PRV-FERT-1.
var skuLike = regexp.MustCompile(`\b[A-Za-z]{2,}[_-][A-Za-z0-9_-]*\d[A-Za-z0-9_-]*\b`)

var (
	skuMention  = regexp.MustCompile(`(?i)(?:\b(?:sku|c[oó]digo)\s*:?\s*)?\b[A-Za-z]{2,}[_-][A-Za-z0-9_-]*\d[A-Za-z0-9_-]*\b`)
	emptyParens = regexp.MustCompile(`\(\s*\)`)
	spaceRun    = regexp.MustCompile(`[ \t]{2,}`)
)

// RedactSKUs removes SKU-like codes, and any "SKU:" label before them, from
// text shown to customers.
func RedactSKUs(text string) string {
	out := skuMention.ReplaceAllString(text, "")
	out = emptyParens.ReplaceAllString(out, "")
	out = spaceRun.ReplaceAllString(out, " ")
	out = strings.ReplaceAll(out, " ,", ",")
	out = strings.ReplaceAll(out, " .", ".")
	return strings.TrimSpace(out)
}

// filler is stripped by ExtractQuery, longest phrases first.
var filler = []string{
	"cuanto cuesta", "cuanto sale", "cuanto vale", "cuanto esta", "a cuanto esta", "a cuanto",
	"que precio tiene", "que precio", "precio del", "precio de la", "precio de", "precio",
	"valor del", "valor de", "tenes", "tienen", "hay stock de", "stock de", "venden", "vendes",
	"busco", "quiero comprar", "necesito comprar", "me decis", "me podes decir",
	"hola", "buenas", "por favor", "porfa", "el", "la", "los", "las", "un", "una", "de", "del",
}

// ExtractQuery strips price and question filler from text, leaving the
// product term. SKU-like codes keep their original casing.
func ExtractQuery(text string) string {
	if m := skuLike.FindString(text); m != "" {
		return m
	}
	words := strings.Fields(textutil.Normalize(text))
	for {
		trimmed := false
		for _, f := range filler {
			fw := strings.Fields(f)
			if len(words) >= len(fw) && strings.Join(words[:len(fw)], " ") == f {
				words = words[len(fw):]
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}
	return strings.Join(words, " ")
}

var (
	confirmations = []string{"si", "sii", "dale", "ok", "okay", "claro", "de una", "perfecto", "bueno", "ese", "esa", "correcto", "exacto"}
	negations     = []string{"no", "nop", "nah", "ninguno", "ninguna", "ninguno de esos", "cancelar", "olvidalo", "dejalo"}
)

// IsConfirmation reports a bare affirmative reply ("sí", "dale").
func IsConfirmation(text string) bool {
	return matchesExactly(text, confirmations)
}

// IsNegation reports a bare negative reply ("no", "ninguno").
func IsNegation(text string) bool {
	return matchesExactly(text, negations)
}

// ackWords carry no product signal on their own.
var ackWords = map[string]bool{
	"ok": true, "okay": true, "oka": true, "dale": true, "gracias": true, "graciass": true,
	"muchas": true, "mil": true, "genial": true, "perfecto": true, "joya": true, "listo": true,
	"buenisimo": true, "barbaro": true, "entendido": true, "bueno": true, "vale": true,
	"si": true, "re": true, "ya": true, "va": true, "de": true, "una": true, "nada": true,
}

// IsAcknowledgement reports a reply made only of thanks or assent words
// ("gracias", "ok dale").
func IsAcknowledgement(text string) bool {
	words := strings.Fields(textutil.Normalize(text))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !ackWords[w] {
			return false
		}
	}
	return true
}

func matchesExactly(text string, set []string) bool {
	n := textutil.Normalize(text)
	for _, s := range set {
		if n == s || n == s+" gracias" {
			return true
		}
	}
	return false
}

var ordinals = map[string]int{
	"primero": 1, "primera": 1, "uno": 1,
	"segundo": 2, "segunda": 2, "dos": 2,
	"tercero": 3, "tercera": 3, "tres": 3,
	"cuarto": 4, "cuarta": 4, "cuatro": 4,
	"quinto": 5, "quinta": 5, "cinco": 5,
}

// SelectionIndex parses a numbered choice ("2", "el segundo", "opción 3")
// and returns the zero-based index, or -1 when text is not a selection
// within n options.
func SelectionIndex(text string, n int) int {
	words := strings.Fields(textutil.Normalize(text))
	if len(words) == 0 || len(words) > 3 {
		return -1
	}
	for _, w := range words {
		idx := 0
		if v, err := strconv.Atoi(w); err == nil {
			idx = v
		} else if v, ok := ordinals[w]; ok {
			idx = v
		}
		if idx >= 1 && idx <= n {
			return idx - 1
		}
	}
	return -1
}
