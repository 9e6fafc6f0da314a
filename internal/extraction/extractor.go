package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"alertrelay/internal/constants"
)

const unknownVehicle = constants.UnknownVehicleCode

var (
	// codeWithPlate matches "MG069 (308FG25-3)" at the start of the trailing subject segment.
	codeWithPlate = regexp.MustCompile(`^([^\s(]+)\s*\(([^)]+)\)`)
	// bodyTypeHint names a type when the subject does not.
	bodyTypeHint = regexp.MustCompile(`(?i)(IMPACTO|EXCESO\s+VELOCIDAD|CHECKLIST|ALARMA)`)
)

// Extractor turns a subject and body into a CandidateRecord. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	loc   *time.Location
	rules []compiledRule
}

// New builds an extractor that reads body timestamps as wall time in loc. Without rules,
// DefaultFieldRules is used.
func New(loc *time.Location, rules ...FieldRule) (*Extractor, error) {
	if loc == nil {
		return nil, fmt.Errorf("extractor needs a reference location")
	}
	if len(rules) == 0 {
		rules = DefaultFieldRules
	}

	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	return &Extractor{loc: loc, rules: compiled}, nil
}

// Extract never fails: anything it cannot read is left nil or set to its sentinel.
func (e *Extractor) Extract(subject, body string, arrival time.Time) CandidateRecord {
	rec := CandidateRecord{
		Subject:        subject,
		VehicleCode:    unknownVehicle,
		TemplateSource: classifyTemplate(subject),
		EventTime:      arrival,
	}

	alertType, code, plate := splitSubject(subject)
	if code != "" {
		rec.VehicleCode = code
	}
	rec.LicensePlate = strPtr(plate)

	text := body
	if LooksLikeMarkup(body) {
		text = MarkupToText(body)
	}
	rec.Text = text

	if alertType == "" {
		if m := bodyTypeHint.FindStringSubmatch(text); m != nil {
			alertType = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		} else {
			alertType = UndeterminedType
		}
	}
	rec.AlertTypeRaw = alertType

	fields := applyRules(e.rules, text)
	rec.Plant = strPtr(fields[FieldPlant])
	rec.Area = strPtr(fields[FieldArea])
	rec.OperatorName = strPtr(fields[FieldOperatorName])
	rec.OperatorID = strPtr(fields[FieldOperatorID])

	if t, ok := parseEventTime(text, e.loc); ok {
		rec.EventTime = t
		rec.EventTimeFromBody = true
	}

	rec.ShortDescription = Describe(rec.AlertTypeRaw, rec)
	rec.Details = strPtr(TruncateRunes(strings.TrimSpace(text), constants.MaxDetailsRunes))
	rec.RawBody = rawPayload(subject, body)

	return rec
}

// Describe renders "TYPE - CODE[ - Planta: p][ - Área: a]" bounded to the collector's limit.
func Describe(alertType string, rec CandidateRecord) string {
	var b strings.Builder
	b.WriteString(alertType)
	b.WriteString(" - ")
	b.WriteString(rec.VehicleCode)
	if rec.Plant != nil {
		b.WriteString(" - Planta: ")
		b.WriteString(*rec.Plant)
	}
	if rec.Area != nil {
		b.WriteString(" - Área: ")
		b.WriteString(*rec.Area)
	}
	return TruncateRunes(b.String(), constants.MaxShortDescriptionRunes)
}

func classifyTemplate(subject string) TemplateSource {
	low := strings.ToLower(subject)
	switch {
	case strings.Contains(low, "checklist"):
		return TemplateChecklist
	case strings.Contains(low, "alarm"):
		return TemplateAlarm
	default:
		return TemplateGeneric
	}
}

// splitSubject reads "hint - TYPE - CODE (PLATE)". The trailing segment keeps any further
// dashes, which plates such as 308FG25-3 contain.
func splitSubject(subject string) (alertType, code, plate string) {
	parts := strings.SplitN(subject, "-", 3)
	if len(parts) >= 2 {
		alertType = strings.TrimSpace(parts[1])
	}
	if len(parts) < 3 {
		return alertType, "", ""
	}

	trailing := strings.TrimSpace(parts[2])
	if m := codeWithPlate.FindStringSubmatch(trailing); m != nil {
		return alertType, strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	if tokens := strings.Fields(trailing); len(tokens) > 0 {
		code = tokens[0]
	}
	return alertType, code, ""
}

func rawPayload(subject, body string) string {
	raw := body
	if raw == "" {
		raw = subject
	}
	if strings.TrimSpace(raw) == "" {
		return constants.EmptyPayload
	}
	return TruncateRunes(raw, constants.MaxRawPayloadRunes)
}

// TruncateRunes cuts s to at most n runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
