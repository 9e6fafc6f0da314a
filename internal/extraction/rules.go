package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

type Field int

const (
	FieldPlant Field = iota
	FieldArea
	FieldOperatorName
	FieldOperatorID
)

func (f Field) String() string {
	switch f {
	case FieldPlant:
		return "plant"
	case FieldArea:
		return "area"
	case FieldOperatorName:
		return "operator_name"
	case FieldOperatorID:
		return "operator_id"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// FieldRule maps label synonyms to a field. Labels and NotAfter entries are regexp fragments
// matched case-insensitively. A label occurrence directly preceded by a NotAfter qualifier is
// ignored, so "ID Operador:" never fills the operator name.
type FieldRule struct {
	Field    Field
	Labels   []string
	NotAfter []string
}

// DefaultFieldRules covers the labels seen in the telemetry alert templates.
var DefaultFieldRules = []FieldRule{
	{Field: FieldPlant, Labels: []string{`Planta`, `Sede`}},
	{Field: FieldArea, Labels: []string{`Área`, `Area`, `Zona`, `Ubicación`, `Ubicacion`, `Lugar`}},
	{Field: FieldOperatorID, Labels: []string{`ID\s*Operador`, `ID\s*Conductor`, `DNI`}},
	{Field: FieldOperatorName, Labels: []string{`Operador`, `Conductor`}, NotAfter: []string{`ID`}},
}

// labelBoundary stands in for \b, which in Go only knows ASCII word characters.
const labelBoundary = `(?:^|[^\p{L}\p{N}])`

// valueNoise cuts a captured value at trailing columnar content.
var valueNoise = regexp.MustCompile(`\s{2,}|\t|\|`)

type compiledRule struct {
	field    Field
	label    *regexp.Regexp
	notAfter *regexp.Regexp
}

func compileRules(rules []FieldRule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for _, rule := range rules {
		if len(rule.Labels) == 0 {
			return nil, fmt.Errorf("rule for %s has no labels", rule.Field)
		}

		label, err := regexp.Compile(`(?i)` + labelBoundary + `(` + strings.Join(rule.Labels, "|") + `)\s*:\s*(.*)`)
		if err != nil {
			return nil, fmt.Errorf("compiling labels for %s: %w", rule.Field, err)
		}

		cr := compiledRule{field: rule.Field, label: label}
		if len(rule.NotAfter) > 0 {
			cr.notAfter, err = regexp.Compile(`(?i)` + labelBoundary + `(?:` + strings.Join(rule.NotAfter, "|") + `)\s*$`)
			if err != nil {
				return nil, fmt.Errorf("compiling qualifiers for %s: %w", rule.Field, err)
			}
		}
		compiled = append(compiled, cr)
	}

	return compiled, nil
}

// match returns the cleaned value of the first acceptable label occurrence in line.
func (r compiledRule) match(line string) (string, bool) {
	for _, loc := range r.label.FindAllStringSubmatchIndex(line, -1) {
		if r.notAfter != nil && r.notAfter.MatchString(line[:loc[2]]) {
			continue
		}

		value := strings.TrimSpace(line[loc[4]:loc[5]])
		value = strings.TrimSpace(valueNoise.Split(value, 2)[0])
		if value != "" {
			return value, true
		}
	}
	return "", false
}

func applyRules(rules []compiledRule, text string) map[Field]string {
	found := make(map[Field]string, len(rules))

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, rule := range rules {
			if _, done := found[rule.field]; done {
				continue
			}
			if value, ok := rule.match(line); ok {
				found[rule.field] = value
			}
		}
	}

	return found
}
