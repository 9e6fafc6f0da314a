package classification

import (
	"context"
	"fmt"

	"alertrelay/pkg/cel"
)

// RuleFilter suppresses eligible records matched by any configured CEL rule.
type RuleFilter struct {
	filters []cel.Filter
}

// NewRuleFilter compiles the rules. No rules gives a filter that never suppresses.
func NewRuleFilter(rules []string) (*RuleFilter, error) {
	if len(rules) == 0 {
		return &RuleFilter{}, nil
	}
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	filters, err := eval.CompileFilters(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid suppress rule: %w", err)
	}
	return &RuleFilter{filters: filters}, nil
}

// Apply returns rec suppressed with SuppressRule when a rule matches. A rule that fails to
// evaluate is reported and the remaining rules still run.
func (f *RuleFilter) Apply(ctx context.Context, rec EventRecord) (EventRecord, error) {
	if !rec.Eligible || len(f.filters) == 0 {
		return rec, nil
	}

	vars := RecordVars(rec)
	var evalErr error
	for _, flt := range f.filters {
		matched, err := flt.Matches(ctx, vars)
		if err != nil {
			if evalErr == nil {
				evalErr = fmt.Errorf("rule %q: %w", flt.Expression, err)
			}
			continue
		}
		if matched {
			return rec.Suppressed(SuppressRule), evalErr
		}
	}
	return rec, evalErr
}

// RecordVars exposes a record to rules. Absent optional fields are empty strings;
// severityRank orders severities from 0 (INFO) to 3 (BLOQUEA_OPERACION).
func RecordVars(rec EventRecord) map[string]interface{} {
	return map[string]interface{}{
		"type":              string(rec.Type),
		"alertTypeRaw":      rec.AlertTypeRaw,
		"severity":          string(rec.Severity),
		"severityRank":      rec.Severity.Rank(),
		"vehicleCode":       rec.VehicleCode,
		"licensePlate":      deref(rec.LicensePlate),
		"templateSource":    string(rec.TemplateSource),
		"plant":             deref(rec.Plant),
		"area":              deref(rec.Area),
		"operatorName":      deref(rec.OperatorName),
		"operatorId":        deref(rec.OperatorID),
		"subject":           rec.Subject,
		"eventTimeFromBody": rec.EventTimeFromBody,
		"eventTime":         rec.EventTime,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
