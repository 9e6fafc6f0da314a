package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"alertrelay/internal/classification"
	"alertrelay/internal/config"
	"alertrelay/internal/deduplication"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	"alertrelay/pkg/tracing"
)

const maxVehicleField = 50

// VehiclePayload is the collector's vehicle registration document.
type VehiclePayload struct {
	CompanyID       int64   `json:"companyId"`
	VehicleCodeRaw  string  `json:"vehicleCodeRaw"`
	VehicleCodeNorm string  `json:"vehicleCodeNorm"`
	LicensePlate    *string `json:"licensePlate"`
}

// NormalizeVehicleCode upper-cases s and drops all whitespace, as the collector does.
func NormalizeVehicleCode(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

func NewVehiclePayload(rec classification.EventRecord, companyID int64) VehiclePayload {
	raw := strings.TrimSpace(rec.VehicleCode)
	p := VehiclePayload{
		CompanyID:       companyID,
		VehicleCodeRaw:  extraction.TruncateRunes(raw, maxVehicleField),
		VehicleCodeNorm: extraction.TruncateRunes(NormalizeVehicleCode(raw), maxVehicleField),
	}
	if rec.LicensePlate != nil {
		plate := extraction.TruncateRunes(strings.TrimSpace(*rec.LicensePlate), maxVehicleField)
		if plate != "" {
			p.LicensePlate = &plate
		}
	}
	return p
}

// RegisteredSet persists normalized codes or plates. *deduplication.Store satisfies it; the
// day a value was registered is its bucket.
type RegisteredSet interface {
	Buckets(ctx context.Context) ([]deduplication.BucketKey, error)
	Members(ctx context.Context, day deduplication.BucketKey) ([]string, error)
	Commit(ctx context.Context, day deduplication.BucketKey, key string) error
	BucketFor(t time.Time) deduplication.BucketKey
}

// VehicleSink registers the vehicles named by alert subjects. A vehicle that already
// exists (409) counts as registered. Registered codes and plates are not posted again;
// with registries attached they are remembered across runs.
type VehicleSink struct {
	client    *client
	url       string
	companyID int64
	logger    logger.Logger

	codeSet  RegisteredSet
	plateSet RegisteredSet

	mu     sync.Mutex
	codes  map[string]struct{}
	plates map[string]struct{}
}

func NewVehicleSink(cfg config.CollectorConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (*VehicleSink, error) {
	endpoint, err := url.JoinPath(cfg.BaseURL, cfg.VehiclesPath)
	if err != nil {
		return nil, fmt.Errorf("invalid collector vehicles url: %w", err)
	}
	return &VehicleSink{
		client:    newClient("collector-vehicles", tracing.HTTPClient(cfg.Timeout), cfg, cbCfg, log),
		url:       endpoint,
		companyID: cfg.CompanyID,
		logger:    log,
		codes:     make(map[string]struct{}),
		plates:    make(map[string]struct{}),
	}, nil
}

// WithRegistries attaches persistent code and plate sets. Either may be nil.
func (s *VehicleSink) WithRegistries(codes, plates RegisteredSet) *VehicleSink {
	s.codeSet, s.plateSet = codes, plates
	return s
}

// Preload reads every value already registered by earlier runs.
func (s *VehicleSink) Preload(ctx context.Context) error {
	codes, err := loadAll(ctx, s.codeSet)
	if err != nil {
		return fmt.Errorf("load registered codes: %w", err)
	}
	plates, err := loadAll(ctx, s.plateSet)
	if err != nil {
		return fmt.Errorf("load registered plates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range codes {
		s.codes[c] = struct{}{}
	}
	for _, p := range plates {
		s.plates[p] = struct{}{}
	}
	s.logger.InfowCtx(ctx, "Registered vehicles loaded", "codes", len(s.codes), "plates", len(s.plates))
	return nil
}

func loadAll(ctx context.Context, set RegisteredSet) ([]string, error) {
	if set == nil {
		return nil, nil
	}
	days, err := set.Buckets(ctx)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, day := range days {
		keys, err := set.Members(ctx, day)
		if err != nil {
			return nil, err
		}
		all = append(all, keys...)
	}
	return all, nil
}

// Screen suppresses records with nothing new to register.
func (s *VehicleSink) Screen(rec classification.EventRecord) classification.EventRecord {
	if !rec.Eligible {
		return rec
	}
	if !rec.HasVehicleCode() {
		return rec.Suppressed(classification.SuppressNoVehicle)
	}

	p := NewVehiclePayload(rec, s.companyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[p.VehicleCodeNorm]; ok {
		return rec.Suppressed(classification.SuppressAlreadyRegistered)
	}
	if p.LicensePlate != nil {
		if _, ok := s.plates[NormalizeVehicleCode(*p.LicensePlate)]; ok {
			return rec.Suppressed(classification.SuppressAlreadyRegistered)
		}
	}
	return rec
}

func (s *VehicleSink) Deliver(ctx context.Context, rec classification.EventRecord) error {
	ctx, span := tracing.GetTracer("delivery").Start(ctx, "delivery.vehicle")
	defer span.End()

	p := NewVehiclePayload(rec, s.companyID)
	status, err := s.client.post(ctx, s.url, p, func(status int) bool {
		return is2xx(status) || status == http.StatusConflict
	})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	var plate string
	if p.LicensePlate != nil {
		plate = NormalizeVehicleCode(*p.LicensePlate)
	}

	s.mu.Lock()
	s.codes[p.VehicleCodeNorm] = struct{}{}
	if plate != "" {
		s.plates[plate] = struct{}{}
	}
	s.mu.Unlock()

	// The collector has the vehicle; remembering it must survive shutdown.
	persistCtx := context.WithoutCancel(ctx)
	s.persist(persistCtx, s.codeSet, p.VehicleCodeNorm)
	if plate != "" {
		s.persist(persistCtx, s.plateSet, plate)
	}

	s.logger.InfowCtx(ctx, "Vehicle registered",
		"status", status,
		"vehicle_code", p.VehicleCodeNorm,
	)
	return nil
}

func (s *VehicleSink) persist(ctx context.Context, set RegisteredSet, value string) {
	if set == nil {
		return
	}
	if err := set.Commit(ctx, set.BucketFor(time.Now()), value); err != nil {
		s.logger.WarnwCtx(ctx, "Could not persist registered vehicle", "value", value, "error", err)
	}
}
