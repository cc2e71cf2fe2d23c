package infrastructure

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidCredential is returned when a telemetry credential is present but unusable
var ErrInvalidCredential = errors.New("invalid telemetry credential")

const (
	keyInstrumentationKey = "instrumentationkey"
	keyIngestionEndpoint  = "ingestionendpoint"
)

// Credential is the parsed form of the telemetry connection string
type Credential struct {
	InstrumentationKey string
	// Endpoint is the collector address as host:port
	Endpoint string
	// Insecure is set when the ingestion endpoint uses plain http
	Insecure bool
}

// ParseCredential accepts either a connection string of the form
// "InstrumentationKey=...;IngestionEndpoint=https://..." or a bare key,
// which is paired with defaultEndpoint. Keys are case-insensitive and
// unknown keys are ignored.
func ParseCredential(raw, defaultEndpoint string) (Credential, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Credential{}, fmt.Errorf("%w: credential is blank", ErrInvalidCredential)
	}

	if !strings.Contains(trimmed, "=") {
		if strings.ContainsAny(trimmed, "; \t") {
			return Credential{}, fmt.Errorf("%w: bare key contains separators", ErrInvalidCredential)
		}
		return Credential{InstrumentationKey: trimmed, Endpoint: defaultEndpoint}, nil
	}

	values := make(map[string]string)
	for _, segment := range strings.Split(trimmed, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return Credential{}, fmt.Errorf("%w: malformed segment %q", ErrInvalidCredential, segment)
		}
		values[key] = strings.TrimSpace(value)
	}

	cred := Credential{
		InstrumentationKey: values[keyInstrumentationKey],
		Endpoint:           defaultEndpoint,
	}
	if cred.InstrumentationKey == "" {
		return Credential{}, fmt.Errorf("%w: InstrumentationKey is required", ErrInvalidCredential)
	}

	if raw, ok := values[keyIngestionEndpoint]; ok {
		endpoint, insecure, err := parseEndpoint(raw)
		if err != nil {
			return Credential{}, err
		}
		cred.Endpoint = endpoint
		cred.Insecure = insecure
	}

	return cred, nil
}

func parseEndpoint(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("%w: IngestionEndpoint %q is not an absolute url", ErrInvalidCredential, raw)
	}

	var insecure bool
	defaultPort := "443"
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		insecure = true
		defaultPort = "80"
	default:
		return "", false, fmt.Errorf("%w: IngestionEndpoint scheme %q is not supported", ErrInvalidCredential, u.Scheme)
	}

	if u.Port() != "" {
		return u.Host, insecure, nil
	}
	return net.JoinHostPort(u.Hostname(), defaultPort), insecure, nil
}
