package pipeline

import (
	"time"

	"alertrelay/internal/broker"
)

// CycleSummary tallies one scan cycle. Found counts search results; the outcome counters add
// up to the messages actually visited, which is fewer than Found when the cycle was cut short.
type CycleSummary struct {
	CycleID    string    `json:"cycleId"`
	Target     string    `json:"target"`
	Since      time.Time `json:"since"`
	Before     time.Time `json:"before,omitzero"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Found          int `json:"found"`
	Delivered      int `json:"delivered"`
	Suppressed     int `json:"suppressed"`
	Duplicates     int `json:"duplicates"`
	DeliveryFailed int `json:"deliveryFailed"`
	Failed         int `json:"failed"`

	// Error is set when the cycle was aborted before visiting every message.
	Error string `json:"error,omitempty"`
}

func (s *CycleSummary) count(o broker.Outcome) {
	switch o {
	case broker.OutcomeDelivered:
		s.Delivered++
	case broker.OutcomeSuppressed:
		s.Suppressed++
	case broker.OutcomeDuplicate:
		s.Duplicates++
	case broker.OutcomeDeliveryFailed:
		s.DeliveryFailed++
	default:
		s.Failed++
	}
}

// Visited is the number of messages that reached a terminal outcome.
func (s CycleSummary) Visited() int {
	return s.Delivered + s.Suppressed + s.Duplicates + s.DeliveryFailed + s.Failed
}
