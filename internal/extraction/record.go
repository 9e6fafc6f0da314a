package extraction

import (
	"time"
)

// TemplateSource is the coarse subject-derived category of a message.
type TemplateSource string

const (
	TemplateChecklist TemplateSource = "CHECKLIST_EMAIL"
	TemplateAlarm     TemplateSource = "ALARM_EMAIL"
	TemplateGeneric   TemplateSource = "GENERIC_EMAIL"
)

// UndeterminedType is the alert-type-raw sentinel when neither subject nor body names a type.
const UndeterminedType = "UNDETERMINED"

// CandidateRecord is what could be read from one message. Optional fields are nil, never "".
type CandidateRecord struct {
	AlertTypeRaw   string
	VehicleCode    string
	LicensePlate   *string
	TemplateSource TemplateSource

	Plant        *string
	Area         *string
	OperatorName *string
	OperatorID   *string

	EventTime time.Time
	// EventTimeFromBody is false when EventTime is the arrival fallback.
	EventTimeFromBody bool

	Subject          string
	ShortDescription string
	Details          *string
	RawBody          string

	// Text is the plain-text rendition of the body used for matching.
	Text string
}

// HasVehicleCode reports whether the subject named a vehicle.
func (c CandidateRecord) HasVehicleCode() bool {
	return c.VehicleCode != "" && c.VehicleCode != unknownVehicle
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
