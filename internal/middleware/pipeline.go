package middleware

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
)

// StageKind identifies a request-processing stage
type StageKind int

const (
	ClientDebuggingSupport StageKind = iota
	ExceptionRedirect
	HSTS
	HTTPSRedirect
	StaticServing
	Routing
)

var stageNames = map[StageKind]string{
	ClientDebuggingSupport: "ClientDebuggingSupport",
	ExceptionRedirect:      "ExceptionRedirect",
	HSTS:                   "HSTS",
	HTTPSRedirect:          "HTTPSRedirect",
	StaticServing:          "StaticServing",
	Routing:                "Routing",
}

func (k StageKind) String() string {
	if name, ok := stageNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Stage is one element of the request chain
type Stage struct {
	Kind StageKind
	// Param carries the stage argument, the error path for ExceptionRedirect
	Param string
	Wrap  func(http.Handler) http.Handler
}

// Chain is an ordered list of stages; the first stage sees the request first
type Chain []Stage

// Kinds returns the stage kinds in order
func (c Chain) Kinds() []StageKind {
	kinds := make([]StageKind, len(c))
	for i, s := range c {
		kinds[i] = s.Kind
	}
	return kinds
}

// Then composes the chain around endpoint
func (c Chain) Then(endpoint http.Handler) http.Handler {
	h := endpoint
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Wrap != nil {
			h = c[i].Wrap(h)
		}
	}
	return h
}

// StageDeps carries what the stage implementations need
type StageDeps struct {
	Logger *slog.Logger
	// WebRoot holds the published client assets
	WebRoot         fs.FS
	FrameworkPrefix string
	ErrorPath       string
	HSTSMaxAge      time.Duration
	HSTSSubdomains  bool
	// HTTPSPort is the redirect target; 0 means unknown
	HTTPSPort int
}

func (d StageDeps) withDefaults() StageDeps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.FrameworkPrefix == "" {
		d.FrameworkPrefix = "/_framework"
	}
	if d.ErrorPath == "" {
		d.ErrorPath = config.ErrorPagePath
	}
	if d.HSTSMaxAge <= 0 {
		d.HSTSMaxAge = config.DefaultHSTSMaxAge
	}
	return d
}

// AssembleChain builds the stage list for mode. Development gets client
// debugging support; Production gets the error page redirect and HSTS.
// Both end with HTTPS redirection, static serving and routing.
func AssembleChain(mode config.RuntimeMode, deps StageDeps) Chain {
	deps = deps.withDefaults()

	var chain Chain
	if mode.IsDevelopment() {
		chain = append(chain, Stage{Kind: ClientDebuggingSupport, Wrap: newClientDebugging(deps)})
	} else {
		chain = append(chain,
			Stage{Kind: ExceptionRedirect, Param: deps.ErrorPath, Wrap: newExceptionRedirect(deps)},
			Stage{Kind: HSTS, Wrap: newHSTS(deps)},
		)
	}

	chain = append(chain,
		Stage{Kind: HTTPSRedirect, Wrap: newHTTPSRedirect(deps)},
		Stage{Kind: StaticServing, Wrap: newStaticServing(deps)},
		Stage{Kind: Routing, Wrap: newRouting(deps)},
	)

	for i, s := range chain {
		deps.Logger.Debug("middleware stage assembled",
			slog.Int("position", i),
			slog.String("stage", s.Kind.String()),
			slog.String("param", s.Param),
			slog.String("mode", mode.String()))
	}

	return chain
}
