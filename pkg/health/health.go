package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

// DegradedError reports a problem that does not make the service unhealthy.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string { return e.Reason }

func Degraded(format string, args ...interface{}) error {
	return &DegradedError{Reason: fmt.Sprintf(format, args...)}
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		var degraded *DegradedError
		switch {
		case err == nil:
			result.Status = StatusHealthy
		case errors.As(err, &degraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// LastCycleFunc reports when the last scan cycle finished and why it aborted, if it did.
type LastCycleFunc func() (finishedAt time.Time, abortReason string, ok bool)

// CycleChecker watches the scan loop. No cycle yet or an aborted last cycle is degraded;
// no finished cycle within staleAfter is unhealthy.
type CycleChecker struct {
	last       LastCycleFunc
	staleAfter time.Duration
	now        func() time.Time
}

func NewCycleChecker(last LastCycleFunc, staleAfter time.Duration) *CycleChecker {
	return &CycleChecker{last: last, staleAfter: staleAfter, now: time.Now}
}

func (c *CycleChecker) Name() string {
	return "scan_cycle"
}

func (c *CycleChecker) Check(context.Context) error {
	finishedAt, abortReason, ok := c.last()
	if !ok {
		return Degraded("no scan cycle has finished yet")
	}
	if age := c.now().Sub(finishedAt); c.staleAfter > 0 && age > c.staleAfter {
		return fmt.Errorf("last scan cycle finished %s ago", age.Round(time.Second))
	}
	if abortReason != "" {
		return Degraded("last scan cycle aborted: %s", abortReason)
	}
	return nil
}
