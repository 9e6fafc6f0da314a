package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay/internal/classification"
	"alertrelay/internal/config"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	apperrors "alertrelay/pkg/errors"
)

func ptr(s string) *string { return &s }

func sampleRecord() classification.EventRecord {
	return classification.EventRecord{
		CandidateRecord: extraction.CandidateRecord{
			AlertTypeRaw:     "IMPACTO",
			VehicleCode:      "MG069",
			LicensePlate:     ptr("308FG25-3"),
			TemplateSource:   extraction.TemplateAlarm,
			Plant:            ptr("Planta Norte"),
			EventTime:        time.Date(2024, 3, 5, 15, 4, 0, 0, time.UTC),
			Subject:          "Alarm - IMPACTO - MG069 (308FG25-3)",
			ShortDescription: "IMPACTO - MG069 - Planta: Planta Norte",
			RawBody:          "Planta: Planta Norte",
		},
		Type:     classification.TypeImpact,
		Severity: classification.SeverityCritical,
		Eligible: true,
	}
}

func collectorConfig(baseURL string) config.CollectorConfig {
	return config.CollectorConfig{
		BaseURL:      baseURL,
		AlertsPath:   "/api/alerts",
		VehiclesPath: "/api/vehicles",
		CompanyID:    7,
		Timeout:      2 * time.Second,
	}
}

func TestNewAlertPayload(t *testing.T) {
	p := NewAlertPayload(sampleRecord(), 7)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "MG069", doc["vehicleCode"])
	assert.Equal(t, "IMPACTO", doc["alertType"])
	assert.Equal(t, "2024-03-05T15:04:00+00:00", doc["eventTime"])
	assert.Equal(t, float64(7), doc["companyId"])
	assert.Equal(t, "308FG25-3", doc["licensePlate"])
	assert.Equal(t, "ALARM_EMAIL", doc["templateSource"])
	assert.Equal(t, "CRITICAL", doc["severity"])
	assert.Equal(t, "Planta Norte", doc["plant"])

	for _, key := range []string{"alertSubtype", "area", "ownerOrVendor", "brandModel", "operatorName", "operatorId", "details"} {
		v, present := doc[key]
		assert.True(t, present, key)
		assert.Nil(t, v, key)
	}
	assert.Len(t, doc, 18)
}

func TestNewAlertPayload_SubtypeAndLimits(t *testing.T) {
	rec := sampleRecord()
	rec.AlertTypeRaw = "Frenada brusca"
	rec.Type = classification.TypeBraking
	rec.Subject = strings.Repeat("á", 300)

	p := NewAlertPayload(rec, 1)
	require.NotNil(t, p.AlertSubtype)
	assert.Equal(t, "Frenada brusca", *p.AlertSubtype)
	require.NotNil(t, p.Subject)
	assert.Equal(t, 255, len([]rune(*p.Subject)))

	rec.Subject = ""
	rec.AlertTypeRaw = extraction.UndeterminedType
	p = NewAlertPayload(rec, 1)
	assert.Nil(t, p.Subject)
	assert.Nil(t, p.AlertSubtype)
}

func TestCommitter_Deliver(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		acceptConflict bool
		wantErr        bool
	}{
		{"created", http.StatusCreated, false, false},
		{"ok", http.StatusOK, false, false},
		{"server error", http.StatusInternalServerError, false, true},
		{"bad request", http.StatusBadRequest, false, true},
		{"conflict rejected by default", http.StatusConflict, false, true},
		{"conflict accepted when configured", http.StatusConflict, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got AlertPayload
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/alerts", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			cfg := collectorConfig(srv.URL)
			cfg.AcceptConflict = tt.acceptConflict
			c, err := NewCommitter(cfg, config.CircuitBreakerConfig{}, logger.NopLogger())
			require.NoError(t, err)

			err = c.Deliver(context.Background(), sampleRecord())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsDelivery(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "MG069", got.VehicleCode)
			assert.Equal(t, int64(7), got.CompanyID)
		})
	}
}

func TestCommitter_TimeoutIsDeliveryError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := collectorConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c, err := NewCommitter(cfg, config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)

	err = c.Deliver(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.True(t, apperrors.IsDelivery(err))
}

func TestCommitter_TransportErrorIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewCommitter(collectorConfig(url), config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)

	err = c.Deliver(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.True(t, apperrors.IsDelivery(err))
}

func TestCommitter_BreakerIgnoresRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	cbCfg := config.CircuitBreakerConfig{Enabled: true, MinRequests: 1, FailureRatio: 0.1}
	c, err := NewCommitter(collectorConfig(srv.URL), cbCfg, logger.NopLogger())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Error(t, c.Deliver(context.Background(), sampleRecord()))
	}
	assert.Equal(t, int32(4), calls.Load())
}
