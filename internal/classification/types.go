package classification

import (
	"fmt"
	"strings"

	"alertrelay/internal/extraction"
)

type CanonicalType string

const (
	TypeImpact       CanonicalType = "IMPACTO"
	TypeBraking      CanonicalType = "FRENADA"
	TypeAcceleration CanonicalType = "ACELERACION"
	TypeUnresolved   CanonicalType = "DESCONOCIDO"
)

// DefaultAllowList is the set of types delivered when configuration does not narrow it.
var DefaultAllowList = []CanonicalType{TypeImpact, TypeBraking, TypeAcceleration}

// ParseAllowList validates configured type names. Only resolvable types may be allowed.
func ParseAllowList(names []string) ([]CanonicalType, error) {
	allowed := make([]CanonicalType, 0, len(names))
	for _, name := range names {
		t := CanonicalType(strings.ToUpper(strings.TrimSpace(name)))
		switch t {
		case TypeImpact, TypeBraking, TypeAcceleration:
			allowed = append(allowed, t)
		default:
			return nil, fmt.Errorf("unknown alert type %q (valid: IMPACTO, FRENADA, ACELERACION)", name)
		}
	}
	return allowed, nil
}

// Severity tiers in ascending order.
type Severity string

const (
	SeverityInfo            Severity = "INFO"
	SeverityWarning         Severity = "WARNING"
	SeverityCritical        Severity = "CRITICAL"
	SeverityBlocksOperation Severity = "BLOQUEA_OPERACION"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityBlocksOperation:
		return 3
	default:
		return 0
	}
}

type SuppressReason string

const (
	SuppressNone           SuppressReason = ""
	SuppressChecklist      SuppressReason = "checklist"
	SuppressTypeNotAllowed SuppressReason = "type_not_allowed"
	SuppressRule           SuppressReason = "rule"

	// Vehicle registration only.
	SuppressNoVehicle         SuppressReason = "no_vehicle"
	SuppressAlreadyRegistered SuppressReason = "already_registered"
)

// EventRecord is a classified candidate. Only Eligible records are delivered; the rest are
// recorded as handled without delivery.
type EventRecord struct {
	extraction.CandidateRecord

	Type           CanonicalType
	Severity       Severity
	Eligible       bool
	SuppressReason SuppressReason
}

// Suppressed returns a copy that will not be delivered.
func (r EventRecord) Suppressed(reason SuppressReason) EventRecord {
	r.Eligible = false
	r.SuppressReason = reason
	return r
}
