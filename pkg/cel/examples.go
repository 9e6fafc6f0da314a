package cel

// SuppressRuleExamples are suppression rules as they would appear under scan.suppress_rules.
var SuppressRuleExamples = map[string]string{
	"type_equals":        `record.type == "ACELERACION"`,
	"low_severity":       `record.severity == "INFO"`,
	"below_critical":     `record.severityRank < 2`,
	"vehicle_prefix":     `record.vehicleCode.startsWith("TEST")`,
	"area_contains":      `record.area.contains("Taller")`,
	"in_list":            `record.vehicleCode in ["MG001", "MG002"]`,
	"body_fallback_time": `!record.eventTimeFromBody && record.type == "FRENADA"`,
	"subject_regex":      `record.subject.matches("(?i)prueba")`,
	"combined":           `record.templateSource == "GENERIC_EMAIL" && record.plant == ""`,
}
