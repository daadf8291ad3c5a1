package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/stacklok/codegate/internal/mux"
	"github.com/stacklok/codegate/internal/packageintel"
	"github.com/stacklok/codegate/internal/piidetect"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/redaction"
	"github.com/stacklok/codegate/internal/signatures"
	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

// AuditSink persists prompts, outputs and alerts. Implemented by
// internal/audit; a Context accepts any implementation so pipeline
// steps stay testable without a database.
type AuditSink interface {
	RecordPrompt(rec models.PromptRecord) error
	RecordOutput(rec models.OutputRecord) error
	RecordAlert(rec models.AlertRecord) error
}

// Context threads every collaborator and every piece of per-request
// state a step might need across the whole request/response chain. It
// is created once per request and passed by pointer to every step,
// request and response alike.
type Context struct {
	// Collaborators, shared across requests.
	Catalog    *signatures.Catalog
	PII        *piidetect.Detector
	Packages   *packageintel.Engine
	Router     *mux.Router
	Workspaces *workspace.Registry
	Providers  *provider.Registry
	Audit      AuditSink
	Log        zerolog.Logger

	// Store is the per-session substitution map. Callers obtain it once
	// per session (see internal/redaction) and reuse it across every
	// request that session makes, so a literal redacted in request N
	// still resolves when it reappears in request N+5's response.
	Store *redaction.SubstitutionStore

	InAdapter  provider.Adapter
	OutAdapter provider.Adapter

	// Per-request state, populated as request steps run.
	RawRequest        []byte
	OutgoingBody      []byte
	PromptID          string
	Filenames         []string
	Alerts            []models.AlertRecord
	RedactionCount    int
	ResolvedWorkspace *models.Workspace

	// Per-response streaming state.
	streamUnredactor    *redaction.StreamUnredactor
	alertNoticeEmitted  bool
	outputBuf           []byte
}

// NewContext builds a Context for one request, sharing the supplied
// long-lived collaborators.
func NewContext(
	catalog *signatures.Catalog,
	pii *piidetect.Detector,
	packages *packageintel.Engine,
	router *mux.Router,
	workspaces *workspace.Registry,
	providers *provider.Registry,
	store *redaction.SubstitutionStore,
	audit AuditSink,
	log zerolog.Logger,
) *Context {
	return &Context{
		Catalog:    catalog,
		PII:        pii,
		Packages:   packages,
		Router:     router,
		Workspaces: workspaces,
		Providers:  providers,
		Store:      store,
		Audit:      audit,
		Log:        log,
	}
}

// newStreamUnredactorFor lazily builds the per-response sliding-window
// unredactor over pc's session substitution store.
func newStreamUnredactorFor(pc *Context) *redaction.StreamUnredactor {
	return redaction.NewStreamUnredactor(pc.Store)
}

// AddAlert appends an alert and, when the sink is configured, persists
// it immediately — alerts are informational and shouldn't block the
// pipeline if persistence lags.
func (pc *Context) AddAlert(a models.AlertRecord) {
	pc.Alerts = append(pc.Alerts, a)
	if pc.Audit != nil {
		if err := pc.Audit.RecordAlert(a); err != nil {
			pc.Log.Warn().Err(err).Msg("failed to persist alert")
		}
	}
}
