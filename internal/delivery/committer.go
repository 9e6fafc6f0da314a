package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"alertrelay/internal/classification"
	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	"alertrelay/pkg/tracing"
)

// EventTimeLayout is ISO-8601 with a numeric offset, "+00:00" rather than "Z" for UTC.
const EventTimeLayout = "2006-01-02T15:04:05-07:00"

// AlertPayload is the collector's alert document. Absent optional values are sent as null.
type AlertPayload struct {
	VehicleCode      string  `json:"vehicleCode"`
	AlertType        string  `json:"alertType"`
	EventTime        string  `json:"eventTime"`
	CompanyID        int64   `json:"companyId"`
	LicensePlate     *string `json:"licensePlate"`
	AlertSubtype     *string `json:"alertSubtype"`
	TemplateSource   string  `json:"templateSource"`
	Severity         string  `json:"severity"`
	Subject          *string `json:"subject"`
	Plant            *string `json:"plant"`
	Area             *string `json:"area"`
	OwnerOrVendor    *string `json:"ownerOrVendor"`
	BrandModel       *string `json:"brandModel"`
	OperatorName     *string `json:"operatorName"`
	OperatorID       *string `json:"operatorId"`
	ShortDescription string  `json:"shortDescription"`
	Details          *string `json:"details"`
	RawPayload       string  `json:"rawPayload"`
}

// NewAlertPayload maps an eligible record onto the collector document.
func NewAlertPayload(rec classification.EventRecord, companyID int64) AlertPayload {
	p := AlertPayload{
		VehicleCode:      rec.VehicleCode,
		AlertType:        string(rec.Type),
		EventTime:        rec.EventTime.Format(EventTimeLayout),
		CompanyID:        companyID,
		LicensePlate:     rec.LicensePlate,
		TemplateSource:   string(rec.TemplateSource),
		Severity:         string(rec.Severity),
		Plant:            rec.Plant,
		Area:             rec.Area,
		OperatorName:     rec.OperatorName,
		OperatorID:       rec.OperatorID,
		ShortDescription: extraction.TruncateRunes(rec.ShortDescription, constants.MaxShortDescriptionRunes),
		Details:          rec.Details,
		RawPayload:       extraction.TruncateRunes(rec.RawBody, constants.MaxRawPayloadRunes),
	}
	if rec.Subject != "" {
		s := extraction.TruncateRunes(rec.Subject, constants.MaxSubjectRunes)
		p.Subject = &s
	}
	// The subject's own wording is kept when it is more specific than the canonical type.
	if raw := rec.AlertTypeRaw; raw != "" && raw != extraction.UndeterminedType && classification.Normalize(raw) != string(rec.Type) {
		p.AlertSubtype = &raw
	}
	return p
}

// Committer delivers eligible records to the collector's alert endpoint.
type Committer struct {
	client         *client
	url            string
	companyID      int64
	acceptConflict bool
	logger         logger.Logger
}

// NewCommitter builds a committer posting to base_url + alerts_path.
func NewCommitter(cfg config.CollectorConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (*Committer, error) {
	endpoint, err := url.JoinPath(cfg.BaseURL, cfg.AlertsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid collector alerts url: %w", err)
	}
	return &Committer{
		client:         newClient("collector-alerts", tracing.HTTPClient(cfg.Timeout), cfg, cbCfg, log),
		url:            endpoint,
		companyID:      cfg.CompanyID,
		acceptConflict: cfg.AcceptConflict,
		logger:         log,
	}, nil
}

// Deliver posts one record. A nil error means the collector accepted it and the caller
// may commit the identity key; any error means the key must not be committed.
func (c *Committer) Deliver(ctx context.Context, rec classification.EventRecord) error {
	ctx, span := tracing.GetTracer("delivery").Start(ctx, "delivery.alert")
	defer span.End()

	status, err := c.client.post(ctx, c.url, NewAlertPayload(rec, c.companyID), c.accepts)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	c.logger.DebugwCtx(ctx, "Alert accepted by collector",
		"status", status,
		"alert_type", rec.Type,
		"vehicle_code", rec.VehicleCode,
	)
	return nil
}

func (c *Committer) accepts(status int) bool {
	return is2xx(status) || (c.acceptConflict && status == http.StatusConflict)
}
