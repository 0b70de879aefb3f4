// Package guardrails checks inbound chat turns before they reach a model
// and redacts personal data before turns are persisted.
//
// Checks, in order:
//   - empty: nothing but whitespace
//   - max_length: more runes than the configured limit
//   - content_filter: configured blocked words or phrases
//   - prompt_injection: heuristic detection of instruction overrides
package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BioTRaX/Growen-sub001/internal/textutil"
)

// DefaultMaxChars bounds inbound turns.
const DefaultMaxChars = 2000

// Kind identifies the check that failed.
type Kind string

const (
	KindEmpty           Kind = "empty"
	KindMaxLength       Kind = "max_length"
	KindContentFilter   Kind = "content_filter"
	KindPromptInjection Kind = "prompt_injection"
)

// Sensitivity levels for prompt injection detection.
const (
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// Result of a check. Message is user-visible.
type Result struct {
	Passed  bool
	Kind    Kind
	Message string
}

// Config configures a Checker.
type Config struct {
	MaxChars     int
	BlockedWords []string
	Sensitivity  string
}

// Checker evaluates inbound text. It is immutable and safe for concurrent use.
type Checker struct {
	maxChars    int
	blocked     []string
	sensitivity string
}

// New creates a checker, filling in defaults.
func New(cfg Config) *Checker {
	c := &Checker{
		maxChars:    cfg.MaxChars,
		sensitivity: cfg.Sensitivity,
	}
	if c.maxChars <= 0 {
		c.maxChars = DefaultMaxChars
	}
	if c.sensitivity == "" {
		c.sensitivity = SensitivityMedium
	}
	for _, w := range cfg.BlockedWords {
		if n := textutil.Normalize(w); n != "" {
			c.blocked = append(c.blocked, n)
		}
	}
	return c
}

// TooLong is the max_length failure, for transports that reject a message
// before its text is decoded.
func TooLong() Result {
	return Result{Kind: KindMaxLength, Message: "El mensaje es demasiado largo, probá resumirlo."}
}

// MaxChars returns the configured length limit.
func (c *Checker) MaxChars() int { return c.maxChars }

// CheckInput runs every input check and returns the first failure.
func (c *Checker) CheckInput(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Kind: KindEmpty, Message: "El mensaje está vacío."}
	}
	if utf8.RuneCountInString(text) > c.maxChars {
		return TooLong()
	}
	if c.blockedContent(text) {
		return Result{Kind: KindContentFilter, Message: "No puedo ayudarte con ese tema."}
	}
	if c.promptInjection(text) {
		return Result{Kind: KindPromptInjection, Message: "No puedo procesar ese pedido. Contame qué necesitás sobre cultivo o productos."}
	}
	return Result{Passed: true}
}

func (c *Checker) blockedContent(text string) bool {
	if len(c.blocked) == 0 {
		return false
	}
	padded := " " + textutil.Normalize(text) + " "
	for _, w := range c.blocked {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// ── Prompt Injection Detection ──────────────────────────────

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)ignor[aáe]\w*\s+(todas\s+)?(las\s+)?(instrucciones|reglas|indicaciones)\s+(anteriores|previas)`),
	regexp.MustCompile(`(?i)olvid[aáe]\w*\s+(todas\s+)?(las\s+|tus\s+)?(instrucciones|reglas|indicaciones)`),
	regexp.MustCompile(`(?i)a\s+partir\s+de\s+ahora\s+(sos|eres|serás|vas\s+a\s+ser)\b`),
	regexp.MustCompile(`(?i)nuevas\s+instrucciones\s*:`),
	regexp.MustCompile(`(?i)act[uú]a\s+como\s+si\s+no\s+tuvieras\s+(reglas|restricciones|filtros)`),
}

var highSensitivityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)(mostrame|mostrá|decime|revelá|revela)\s+(tu|el)\s+(prompt|system\s+prompt|instrucciones)`),
	regexp.MustCompile(`(?i)(cu[aá]l\s+es|cu[aá]les\s+son)\s+tus\s+(instrucciones|reglas)`),
	regexp.MustCompile(`(?i)bypass\s+(your|the|all)\s+`),
}

func (c *Checker) promptInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	if c.sensitivity == SensitivityHigh {
		for _, re := range highSensitivityPatterns {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// ── PII Redaction ───────────────────────────────────────────

var piiPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"card", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{"cuit", regexp.MustCompile(`\b\d{2}-\d{8}-\d\b`)},
	{"phone", regexp.MustCompile(`(?:\+?54\s?9?\s?)?\b(?:11|[2-9]\d{1,3})[-\s]?\d{3,4}[-\s]?\d{4}\b`)},
	{"dni", regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}\b`)},
}

// Redact replaces emails, card numbers, CUITs, phone numbers and DNIs with
// a placeholder naming the kind of data removed.
func Redact(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, "["+p.name+"]")
	}
	return text
}
