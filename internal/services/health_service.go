package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/infrastructure"
)

// HealthStatus is ordered by severity, so the worst of two is the larger
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Degraded
	Unhealthy
)

var healthStatusNames = [...]string{"Healthy", "Degraded", "Unhealthy"}

func (s HealthStatus) String() string {
	if s < Healthy || s > Unhealthy {
		return "Unknown"
	}
	return healthStatusNames[s]
}

// ParseHealthStatus is the inverse of String, case-insensitive
func ParseHealthStatus(name string) (HealthStatus, error) {
	for i, n := range healthStatusNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return HealthStatus(i), nil
		}
	}
	return Unhealthy, fmt.Errorf("unknown health status %q", name)
}

// MarshalJSON renders the status by name
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the status name
func (s *HealthStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseHealthStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Worst returns the more severe of s and other
func (s HealthStatus) Worst(other HealthStatus) HealthStatus {
	if other > s {
		return other
	}
	return s
}

// HealthCheck probes one dependency. A nil error means Healthy; any error
// gives the entry the failure status it was registered with.
type HealthCheck func(ctx context.Context) error

// HealthReportEntry is the outcome of a single check
type HealthReportEntry struct {
	Status      HealthStatus  `json:"status"`
	Description string        `json:"description,omitempty"`
	Duration    time.Duration `json:"-"`
	Error       string        `json:"error,omitempty"`
}

// HealthReport aggregates every registered check
type HealthReport struct {
	Status        HealthStatus                 `json:"status"`
	TotalDuration time.Duration                `json:"-"`
	Entries       map[string]HealthReportEntry `json:"entries"`
}

type entryJSON struct {
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	Duration    string       `json:"duration"`
	Error       string       `json:"error,omitempty"`
}

// MarshalJSON writes durations in time.Duration notation
func (e HealthReportEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Status:      e.Status,
		Description: e.Description,
		Duration:    e.Duration.String(),
		Error:       e.Error,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON
func (e *HealthReportEntry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Status = raw.Status
	e.Description = raw.Description
	e.Error = raw.Error
	if raw.Duration != "" {
		d, err := time.ParseDuration(raw.Duration)
		if err != nil {
			return fmt.Errorf("entry duration: %w", err)
		}
		e.Duration = d
	}
	return nil
}

// MarshalJSON writes the total duration in time.Duration notation
func (r HealthReport) MarshalJSON() ([]byte, error) {
	type alias HealthReport
	return json.Marshal(struct {
		alias
		TotalDuration string `json:"totalDuration"`
	}{alias: alias(r), TotalDuration: r.TotalDuration.String()})
}

// UnmarshalJSON reads the form written by MarshalJSON
func (r *HealthReport) UnmarshalJSON(data []byte) error {
	type alias HealthReport
	aux := struct {
		*alias
		TotalDuration string `json:"totalDuration"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TotalDuration != "" {
		d, err := time.ParseDuration(aux.TotalDuration)
		if err != nil {
			return fmt.Errorf("total duration: %w", err)
		}
		r.TotalDuration = d
	}
	return nil
}

// Names returns the entry names in sorted order
func (r HealthReport) Names() []string {
	names := make([]string, 0, len(r.Entries))
	for name := range r.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type registration struct {
	name          string
	check         HealthCheck
	failureStatus HealthStatus
}

// HealthCheckService runs registered checks concurrently and folds them into a report
type HealthCheckService struct {
	logger   *slog.Logger
	timeout  time.Duration
	duration metric.Float64Histogram

	mu     sync.RWMutex
	checks []registration
}

// NewHealthCheckService creates the service. Each check gets at most timeout.
func NewHealthCheckService(logger *slog.Logger, timeout time.Duration) *HealthCheckService {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	duration, err := otel.Meter(infrastructure.ScopeName).Float64Histogram(
		"health.check.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of individual health checks"),
	)
	if err != nil {
		logger.Warn("health check histogram unavailable", slog.String("error", err.Error()))
	}

	return &HealthCheckService{
		logger:   infrastructure.WithComponent(logger, "health"),
		timeout:  timeout,
		duration: duration,
	}
}

// Register adds a named check. Names must be unique.
func (s *HealthCheckService) Register(name string, check HealthCheck, failureStatus HealthStatus) error {
	if name == "" {
		return errors.New("health check name is required")
	}
	if check == nil {
		return fmt.Errorf("health check %q has no implementation", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.checks {
		if r.name == name {
			return fmt.Errorf("health check %q already registered", name)
		}
	}
	s.checks = append(s.checks, registration{name: name, check: check, failureStatus: failureStatus})
	return nil
}

// Names returns the registered check names in registration order
func (s *HealthCheckService) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.checks))
	for i, r := range s.checks {
		names[i] = r.name
	}
	return names
}

// CheckHealth runs every registered check and reports the worst status.
// With no checks registered the report is Healthy.
func (s *HealthCheckService) CheckHealth(ctx context.Context) HealthReport {
	s.mu.RLock()
	checks := make([]registration, len(s.checks))
	copy(checks, s.checks)
	s.mu.RUnlock()

	start := time.Now()
	entries := make([]HealthReportEntry, len(checks))

	var g errgroup.Group
	for i, reg := range checks {
		g.Go(func() error {
			entries[i] = s.run(ctx, reg)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:        Healthy,
		TotalDuration: time.Since(start),
		Entries:       make(map[string]HealthReportEntry, len(checks)),
	}
	for i, reg := range checks {
		report.Entries[reg.name] = entries[i]
		report.Status = report.Status.Worst(entries[i].Status)
	}

	s.logger.DebugContext(ctx, "health report computed",
		slog.String("status", report.Status.String()),
		slog.Int("checks", len(checks)),
		slog.Duration("duration", report.TotalDuration))

	return report
}

func (s *HealthCheckService) run(ctx context.Context, reg registration) HealthReportEntry {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.logger.ErrorContext(ctx, "health check panicked",
					slog.String("check", reg.name),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())))
				done <- fmt.Errorf("panic: %v", rvr)
			}
		}()
		done <- reg.check(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("health check timed out: %w", ctx.Err())
	}

	entry := HealthReportEntry{Status: Healthy, Duration: time.Since(start)}
	if err != nil {
		entry.Status = reg.failureStatus
		entry.Error = err.Error()
		entry.Description = fmt.Sprintf("%s check failed", reg.name)
		s.logger.WarnContext(ctx, "health check failed",
			slog.String("check", reg.name),
			slog.String("status", entry.Status.String()),
			slog.String("error", err.Error()))
	}

	if s.duration != nil {
		s.duration.Record(context.WithoutCancel(ctx), entry.Duration.Seconds(),
			metric.WithAttributes(
				attribute.String("check", reg.name),
				attribute.String("status", entry.Status.String()),
			))
	}

	return entry
}
