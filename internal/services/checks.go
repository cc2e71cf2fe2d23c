package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-resty/resty/v2"
)

// ErrMissingEntryDocument means the client application was not published into the web root
var ErrMissingEntryDocument = errors.New("entry document not found")

// TelemetryState is satisfied by the telemetry pipelines
type TelemetryState interface {
	Enabled() bool
	Check(ctx context.Context) error
}

// EntryDocumentCheck verifies that the document served for client routes exists
func EntryDocumentCheck(root fs.FS, name string) HealthCheck {
	return func(ctx context.Context) error {
		if root == nil {
			return fmt.Errorf("%w: no web root", ErrMissingEntryDocument)
		}
		info, err := fs.Stat(root, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingEntryDocument, name, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrMissingEntryDocument, name)
		}
		return nil
	}
}

// TelemetryCheck fails once the pipelines have been released. Disabled
// telemetry is a valid configuration and passes.
func TelemetryCheck(state TelemetryState) HealthCheck {
	return func(ctx context.Context) error {
		if state == nil || !state.Enabled() {
			return nil
		}
		return state.Check(ctx)
	}
}

// UpstreamCheck issues a GET against url and fails on transport errors and 5xx responses
func UpstreamCheck(client *resty.Client, url string) HealthCheck {
	return func(ctx context.Context) error {
		resp, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("upstream request failed: %w", err)
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("upstream returned %s", resp.Status())
		}
		return nil
	}
}
