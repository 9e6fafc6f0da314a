package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"alertrelay/internal/broker"
	"alertrelay/internal/classification"
	"alertrelay/internal/deduplication"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	"alertrelay/internal/mailbox"
	apperrors "alertrelay/pkg/errors"
	"alertrelay/pkg/logging"
	"alertrelay/pkg/metrics"
	"alertrelay/pkg/tracing"
)

// Deliverer hands an eligible record to its destination. A nil error means the record was
// accepted and its identity key may be committed.
type Deliverer interface {
	Deliver(ctx context.Context, rec classification.EventRecord) error
}

// Screener is implemented by deliverers that suppress records on their own terms.
type Screener interface {
	Screen(rec classification.EventRecord) classification.EventRecord
}

// Target names the destination, reported in summaries and outcome events.
const (
	TargetAlerts   = "alerts"
	TargetVehicles = "vehicles"
)

type Deps struct {
	Mailbox    mailbox.Mailbox
	Extractor  *extraction.Extractor
	Classifier *classification.Classifier
	Rules      *classification.RuleFilter
	Store      *deduplication.Store
	Sink       Deliverer
	Producer   broker.Producer
	Logger     logger.Logger

	Target string
	// WindowPaddingDays widens the dedup lookup window before Criteria.Since.
	WindowPaddingDays int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Driver runs scan cycles: search the mailbox, then extract, classify, deliver and commit
// each message in search order. It is not safe to run two cycles at once.
type Driver struct {
	deps Deps

	mu   sync.RWMutex
	last *CycleSummary
}

func NewDriver(deps Deps) (*Driver, error) {
	switch {
	case deps.Mailbox == nil:
		return nil, fmt.Errorf("driver needs a mailbox")
	case deps.Extractor == nil || deps.Classifier == nil:
		return nil, fmt.Errorf("driver needs an extractor and a classifier")
	case deps.Store == nil:
		return nil, fmt.Errorf("driver needs a dedup store")
	case deps.Sink == nil:
		return nil, fmt.Errorf("driver needs a delivery sink")
	}
	if deps.Rules == nil {
		deps.Rules = &classification.RuleFilter{}
	}
	if deps.Producer == nil {
		deps.Producer = broker.NopProducer{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Target == "" {
		deps.Target = TargetAlerts
	}
	return &Driver{deps: deps}, nil
}

// RunCycle processes every message matching criteria. Connect and search failures abort the
// cycle with a MAILBOX_TRANSPORT error. Per-message failures are logged, counted and skipped
// without committing, so the message is retried by a later cycle.
func (d *Driver) RunCycle(ctx context.Context, criteria mailbox.Criteria) (summary CycleSummary, err error) {
	summary = CycleSummary{
		CycleID:   uuid.NewString(),
		Target:    d.deps.Target,
		Since:     criteria.Since,
		Before:    criteria.Before,
		StartedAt: d.deps.Now(),
	}
	ctx = logging.WithCycleID(ctx, summary.CycleID)
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.cycle")
	defer span.End()

	defer func() {
		summary.FinishedAt = d.deps.Now()
		status := "ok"
		if err != nil {
			summary.Error = err.Error()
			status = "aborted"
			tracing.RecordError(span, err)
		}
		span.SetAttributes(
			attribute.Int("cycle.found", summary.Found),
			attribute.Int("cycle.delivered", summary.Delivered),
		)
		metrics.ObserveScanCycle(summary.FinishedAt.Sub(summary.StartedAt), status)
		d.remember(summary)
	}()

	session, err := d.deps.Mailbox.Connect(ctx)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			d.deps.Logger.DebugwCtx(ctx, "Mailbox close failed", "error", cerr)
		}
	}()

	uids, err := session.Search(ctx, criteria)
	if err != nil {
		return summary, apperrors.Wrap(err, apperrors.ErrMailboxTransport)
	}
	summary.Found = len(uids)

	window := d.deps.Store.WindowBuckets(criteria.Since, d.deps.Now(), d.deps.WindowPaddingDays)
	seen := d.deps.Store.LookupWindow(ctx, window)

	d.deps.Logger.InfowCtx(ctx, "Scan cycle started",
		"target", d.deps.Target,
		"since", criteria.Since.Format(time.DateOnly),
		"found", len(uids),
		"known_keys", len(seen),
	)

	for _, uid := range uids {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		outcome := d.processMessage(logging.WithMessageUID(ctx, uint32(uid)), session, uid, seen)
		summary.count(outcome)
		metrics.IncMessageOutcome(string(outcome))
	}

	d.deps.Logger.InfowCtx(ctx, "Scan cycle finished",
		"found", summary.Found,
		"delivered", summary.Delivered,
		"suppressed", summary.Suppressed,
		"duplicates", summary.Duplicates,
		"delivery_failed", summary.DeliveryFailed,
		"failed", summary.Failed,
	)
	return summary, err
}

// processMessage takes one message to a terminal outcome. seen is updated with every key
// committed here so a key repeated within the same search is handled once.
func (d *Driver) processMessage(ctx context.Context, session mailbox.Session, uid mailbox.UID, seen map[string]struct{}) (outcome broker.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			d.deps.Logger.ErrorwCtx(ctx, "Panic while processing message", "error", err)
			outcome = broker.OutcomeFailed
		}
	}()

	msg, err := session.Fetch(ctx, uid)
	if err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Skipping message that could not be fetched", "error", err)
		d.publish(ctx, broker.OutcomeEvent{Outcome: broker.OutcomeFailed, UID: uint32(uid), Error: err.Error()})
		return broker.OutcomeFailed
	}

	key := msg.IdentityKey()
	ctx = logging.WithIdentityKey(ctx, key)
	if _, ok := seen[key]; ok {
		d.deps.Logger.DebugwCtx(ctx, "Already handled, skipping")
		return broker.OutcomeDuplicate
	}

	rec := d.deps.Classifier.Classify(d.deps.Extractor.Extract(msg.Subject, msg.Body, msg.Arrival))
	rec, err = d.deps.Rules.Apply(ctx, rec)
	if err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Suppress rule failed to evaluate", "error", err)
	}
	if s, ok := d.deps.Sink.(Screener); ok {
		rec = s.Screen(rec)
	}

	event := broker.OutcomeEvent{
		IdentityKey: key,
		UID:         uint32(uid),
		AlertType:   string(rec.Type),
		Severity:    string(rec.Severity),
		VehicleCode: rec.VehicleCode,
	}

	if !rec.Eligible {
		if err := d.deps.Store.Commit(ctx, d.deps.Store.BucketFor(d.deps.Now()), key); err != nil {
			d.deps.Logger.ErrorwCtx(ctx, "Could not record suppressed message", "error", err)
			event.Outcome, event.Error = broker.OutcomeFailed, err.Error()
			d.publish(ctx, event)
			return broker.OutcomeFailed
		}
		seen[key] = struct{}{}
		metrics.IncSuppressed(string(rec.SuppressReason))
		d.deps.Logger.InfowCtx(ctx, "Message suppressed",
			"reason", rec.SuppressReason,
			"alert_type", rec.Type,
			"subject", rec.Subject,
		)
		event.Outcome, event.SuppressReason = broker.OutcomeSuppressed, string(rec.SuppressReason)
		d.publish(ctx, event)
		return broker.OutcomeSuppressed
	}

	if err := d.deps.Sink.Deliver(ctx, rec); err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Delivery failed, will retry next cycle",
			"alert_type", rec.Type,
			"vehicle_code", rec.VehicleCode,
			"error", err,
		)
		event.Outcome, event.Error = broker.OutcomeDeliveryFailed, err.Error()
		d.publish(ctx, event)
		return broker.OutcomeDeliveryFailed
	}

	// The collector has the alert, so shutdown must not stop the commit. A failed commit
	// means a later cycle may deliver it again.
	commitCtx := context.WithoutCancel(ctx)
	if err := d.deps.Store.Commit(commitCtx, d.deps.Store.BucketFor(d.deps.Now()), key); err != nil {
		d.deps.Logger.ErrorwCtx(ctx, "Delivered but could not record identity key", "error", err)
	} else {
		seen[key] = struct{}{}
	}
	d.markHandled(commitCtx, session, uid)

	d.deps.Logger.InfowCtx(ctx, "Message delivered",
		"alert_type", rec.Type,
		"severity", rec.Severity,
		"vehicle_code", rec.VehicleCode,
	)
	event.Outcome = broker.OutcomeDelivered
	d.publish(ctx, event)
	return broker.OutcomeDelivered
}

func (d *Driver) markHandled(ctx context.Context, session mailbox.Session, uid mailbox.UID) {
	if err := session.MarkHandled(ctx, uid); err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Could not mark message handled", "error", err)
	}
}

// publish is best effort.
func (d *Driver) publish(ctx context.Context, event broker.OutcomeEvent) {
	event.EventID = uuid.NewString()
	event.CycleID = logging.GetCycleID(ctx)
	event.Target = d.deps.Target
	event.OccurredAt = d.deps.Now().UTC()
	if err := d.deps.Producer.Publish(ctx, event); err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Outcome event not published", "error", err)
	}
}

func (d *Driver) remember(s CycleSummary) {
	d.mu.Lock()
	d.last = &s
	d.mu.Unlock()
}

// LastSummary returns the summary of the most recent cycle, if any ran.
func (d *Driver) LastSummary() (CycleSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return CycleSummary{}, false
	}
	return *d.last, true
}
