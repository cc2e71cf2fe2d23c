package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/shared/testutil"
)

func passing(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("unreachable") }

func TestHealthStatus(t *testing.T) {
	assert.True(t, Healthy < Degraded && Degraded < Unhealthy)
	assert.Equal(t, Unhealthy, Degraded.Worst(Unhealthy))
	assert.Equal(t, Degraded, Degraded.Worst(Healthy))
	assert.Equal(t, "Unknown", HealthStatus(9).String())

	parsed, err := ParseHealthStatus("degraded")
	require.NoError(t, err)
	assert.Equal(t, Degraded, parsed)

	_, err = ParseHealthStatus("sideways")
	assert.Error(t, err)
}

func TestHealthCheckService_CheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		failures   map[string]HealthStatus
		wantStatus HealthStatus
		wantFailed []string
	}{
		{
			name:       "no checks is healthy",
			wantStatus: Healthy,
		},
		{
			name:       "all passing",
			checks:     map[string]HealthCheck{"a": passing, "b": passing},
			wantStatus: Healthy,
		},
		{
			name:       "degraded failure",
			checks:     map[string]HealthCheck{"a": passing, "telemetry": failing},
			failures:   map[string]HealthStatus{"telemetry": Degraded},
			wantStatus: Degraded,
			wantFailed: []string{"telemetry"},
		},
		{
			name:       "worst entry wins",
			checks:     map[string]HealthCheck{"telemetry": failing, "entry_document": failing},
			failures:   map[string]HealthStatus{"telemetry": Degraded, "entry_document": Unhealthy},
			wantStatus: Unhealthy,
			wantFailed: []string{"entry_document", "telemetry"},
		},
		{
			name: "panic is a failure",
			checks: map[string]HealthCheck{"boom": func(context.Context) error {
				panic("check exploded")
			}},
			failures:   map[string]HealthStatus{"boom": Unhealthy},
			wantStatus: Unhealthy,
			wantFailed: []string{"boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			svc := NewHealthCheckService(logger, time.Second)

			for name, check := range tt.checks {
				failure, ok := tt.failures[name]
				if !ok {
					failure = Unhealthy
				}
				require.NoError(t, svc.Register(name, check, failure))
			}

			report := svc.CheckHealth(context.Background())

			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Len(t, report.Entries, len(tt.checks))

			var failed []string
			for _, name := range report.Names() {
				if report.Entries[name].Status != Healthy {
					failed = append(failed, name)
					assert.NotEmpty(t, report.Entries[name].Error)
				}
			}
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestHealthCheckService_Timeout(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	svc := NewHealthCheckService(logger, 20*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, svc.Register("slow", func(context.Context) error {
		<-release
		return nil
	}, Degraded))

	start := time.Now()
	report := svc.CheckHealth(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Degraded, report.Status)
	assert.Contains(t, report.Entries["slow"].Error, "timed out")
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "health check failed")
}

func TestHealthCheckService_RunsChecksConcurrently(t *testing.T) {
	svc := NewHealthCheckService(nil, time.Second)

	var running, peak int32
	check := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Register(name, check, Unhealthy))
	}

	svc.CheckHealth(context.Background())
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestHealthCheckService_Register(t *testing.T) {
	svc := NewHealthCheckService(nil, 0)

	require.NoError(t, svc.Register("entry_document", passing, Unhealthy))
	assert.Error(t, svc.Register("entry_document", passing, Unhealthy))
	assert.Error(t, svc.Register("", passing, Unhealthy))
	assert.Error(t, svc.Register("nil", nil, Unhealthy))
	assert.Equal(t, []string{"entry_document"}, svc.Names())
}

func TestHealthReport_JSON(t *testing.T) {
	report := HealthReport{
		Status:        Degraded,
		TotalDuration: 1500 * time.Millisecond,
		Entries: map[string]HealthReportEntry{
			"telemetry": {Status: Degraded, Duration: time.Second, Error: "closed"},
		},
	}

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Degraded", raw["status"])
	assert.Equal(t, "1.5s", raw["totalDuration"])
	entry := raw["entries"].(map[string]interface{})["telemetry"].(map[string]interface{})
	assert.Equal(t, "1s", entry["duration"])

	var decoded HealthReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report, decoded)
}
