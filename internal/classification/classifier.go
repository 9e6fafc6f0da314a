package classification

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"alertrelay/internal/extraction"
)

// normalizers strip combining marks and upper-case; chains carry state so each use takes its own.
var normalizers = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
			cases.Upper(language.Und),
		)
	},
}

// Normalize upper-cases s and removes accents so "Aceleración" and "ACELERACION" compare equal.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	tr := normalizers.Get().(transform.Transformer)
	out, _, err := transform.String(tr, strings.ToValidUTF8(s, ""))
	tr.Reset()
	normalizers.Put(tr)
	if err != nil {
		return strings.ToUpper(s)
	}
	return out
}

// markers are keyword stems checked in this order.
var markers = []struct {
	stem string
	kind CanonicalType
}{
	{stem: "IMPACTO", kind: TypeImpact},
	{stem: "FREN", kind: TypeBraking},
	{stem: "ACELER", kind: TypeAcceleration},
}

var blockingPhrases = []string{"SIN CONDICIONES", "BLOQUEA"}

// Classifier maps candidates onto canonical types and severities. It is safe for concurrent use.
type Classifier struct {
	allowed map[CanonicalType]struct{}
}

func New(allowed []CanonicalType) *Classifier {
	if len(allowed) == 0 {
		allowed = DefaultAllowList
	}
	set := make(map[CanonicalType]struct{}, len(allowed))
	for _, t := range allowed {
		set[t] = struct{}{}
	}
	return &Classifier{allowed: set}
}

func (c *Classifier) Allows(t CanonicalType) bool {
	_, ok := c.allowed[t]
	return ok
}

func (c *Classifier) Classify(rec extraction.CandidateRecord) EventRecord {
	body := Normalize(rec.Text)
	kind := Canonicalize(rec.AlertTypeRaw, rec.Subject, rec.Text)

	ev := EventRecord{
		CandidateRecord: rec,
		Type:            kind,
		Severity:        severity(kind, body),
		Eligible:        true,
	}

	switch {
	case rec.TemplateSource == extraction.TemplateChecklist:
		return ev.Suppressed(SuppressChecklist)
	case !c.Allows(kind):
		return ev.Suppressed(SuppressTypeNotAllowed)
	}
	return ev
}

// Canonicalize returns the type named by the first source that contains a marker.
func Canonicalize(sources ...string) CanonicalType {
	for _, src := range sources {
		normalized := Normalize(src)
		if normalized == "" {
			continue
		}
		for _, m := range markers {
			if strings.Contains(normalized, m.stem) {
				return m.kind
			}
		}
	}
	return TypeUnresolved
}

// severity applies the fixed priority: blocked operation, then impact, then braking or acceleration.
func severity(kind CanonicalType, normalizedBody string) Severity {
	for _, phrase := range blockingPhrases {
		if strings.Contains(normalizedBody, phrase) {
			return SeverityBlocksOperation
		}
	}

	switch kind {
	case TypeImpact:
		return SeverityCritical
	case TypeBraking, TypeAcceleration:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
