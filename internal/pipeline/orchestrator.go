// Package pipeline drives the extraction retry loop: obtain a candidate from
// the proposal collaborator, verify it, and either persist a lineage row or
// feed the verification failures back into the next attempt.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/resilience"
	"github.com/sells-group/claimtrace/internal/store"
	"github.com/sells-group/claimtrace/internal/verify"
)

// State identifies where the orchestrator is in one extraction request.
type State string

const (
	StateProposing State = "proposing"
	StateVerifying State = "verifying"
	StateAccepted  State = "accepted"
	StateRetrying  State = "retrying"
	StateExhausted State = "exhausted"
)

// ProposalRequest is the input to one proposal attempt.
type ProposalRequest struct {
	Document model.SourceDocument
	// Context tells the collaborator what to extract ("Q2 revenue metrics").
	Context string
	// Feedback accumulates corrective lines from earlier failed attempts;
	// empty on attempt 1.
	Feedback []string
	Attempt  int
}

// Proposal is one candidate plus the provenance of the model that produced it.
type Proposal struct {
	Candidate model.CandidateExtraction
	Model     string
}

// Proposer obtains candidate extractions from the generative collaborator.
type Proposer interface {
	Propose(ctx context.Context, req ProposalRequest) (*Proposal, error)
}

// Observer receives orchestrator outcomes. Implementations must be
// concurrency-safe; many orchestrator instances run in parallel.
type Observer interface {
	ExtractionAccepted(status model.VerificationStatus, attempts int)
	ExtractionExhausted(attempts int)
	CheckFailed(checkID string)
}

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total proposal attempts per extraction request.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// AttemptTimeout bounds each proposal call. A timed-out call consumes
	// one attempt with a synthetic feedback line.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
	// Agent is the provenance string recorded on accepted rows.
	Agent string `yaml:"agent" mapstructure:"agent"`
}

// DefaultConfig returns the standard retry-loop settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 60 * time.Second,
		Agent:          "claimtrace",
	}
}

// ExhaustedError is the terminal failure after the retry budget is consumed.
// No lineage row exists for the request; the full issue history is carried so
// the caller (and the review queue) can show why every attempt failed.
type ExhaustedError struct {
	Attempts     int
	IssueHistory []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("extraction rejected after %d attempts (%d issues recorded)",
		e.Attempts, len(e.IssueHistory))
}

// Orchestrator runs the state machine for one extraction request at a time.
// Instances are stateless between Run calls and safe for concurrent use.
type Orchestrator struct {
	proposer Proposer
	engine   *verify.Engine
	store    store.Store
	observer Observer
	cfg      Config
}

func NewOrchestrator(p Proposer, e *verify.Engine, st store.Store, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.Agent == "" {
		cfg.Agent = def.Agent
	}
	return &Orchestrator{proposer: p, engine: e, store: st, cfg: cfg}
}

// WithObserver attaches a metrics observer. Returns the orchestrator for
// chaining.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// Run drives up to MaxAttempts propose/verify cycles for one extraction
// request. On acceptance it creates the lineage row and returns it. On
// exhaustion it enqueues a review entry and returns *ExhaustedError.
//
// Attempts within one Run are strictly sequential: attempt k's feedback
// reflects attempt k-1's verdict.
func (o *Orchestrator) Run(ctx context.Context, doc model.SourceDocument, extractionContext string) (*model.ExtractionLineage, error) {
	var feedback []string
	var history []string

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		proposal, err := o.propose(ctx, doc, extractionContext, feedback, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "pipeline: cancelled")
			}
			// Upstream failure or per-attempt timeout: consumes the attempt.
			zap.L().Warn("proposal attempt failed",
				zap.Int("attempt", attempt),
				zap.String("error_class", resilience.ClassifyError(err)),
				zap.Error(err),
			)
			line := fmt.Sprintf("attempt %d produced no candidate: %v", attempt, err)
			feedback = append(feedback, line)
			history = append(history, line)
			o.logTransition(StateProposing, StateRetrying, attempt, doc.ContentHash)
			continue
		}

		verdict := o.engine.Verify(proposal.Candidate, doc)
		history = append(history, verdict.SoftIssues...)
		for _, check := range verdict.ChecksFailed {
			if o.observer != nil {
				o.observer.CheckFailed(check)
			}
		}

		if !verdict.HardFailed {
			o.logTransition(StateVerifying, StateAccepted, attempt, doc.ContentHash)
			return o.accept(ctx, doc, proposal, verdict, attempt)
		}

		lines := o.engine.Feedback(proposal.Candidate, doc, verdict)
		history = append(history, lines...)
		if attempt < o.cfg.MaxAttempts {
			feedback = append(feedback, lines...)
			o.logTransition(StateVerifying, StateRetrying, attempt, doc.ContentHash)
		}
	}

	o.logTransition(StateVerifying, StateExhausted, o.cfg.MaxAttempts, doc.ContentHash)
	if o.observer != nil {
		o.observer.ExtractionExhausted(o.cfg.MaxAttempts)
	}
	o.enqueueReview(ctx, doc, extractionContext, history)

	return nil, &ExhaustedError{Attempts: o.cfg.MaxAttempts, IssueHistory: history}
}

func (o *Orchestrator) propose(ctx context.Context, doc model.SourceDocument, extractionContext string, feedback []string, attempt int) (*Proposal, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	proposal, err := o.proposer.Propose(attemptCtx, ProposalRequest{
		Document: doc,
		Context:  extractionContext,
		Feedback: feedback,
		Attempt:  attempt,
	})
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, eris.Wrapf(err, "proposal timed out after %s", o.cfg.AttemptTimeout)
		}
		return nil, err
	}
	return proposal, nil
}

func (o *Orchestrator) accept(ctx context.Context, doc model.SourceDocument, proposal *Proposal, verdict model.VerificationVerdict, attempts int) (*model.ExtractionLineage, error) {
	cand := proposal.Candidate
	status := model.StatusVerified
	if len(verdict.SoftIssues) > 0 {
		status = model.StatusFlagged
	}

	row := &model.ExtractionLineage{
		ExtractionID:       uuid.NewString(),
		SourceDocumentURL:  doc.URL,
		SourceDocumentHash: doc.ContentHash,
		ExtractionAgent:    o.cfg.Agent,
		ExtractionModel:    proposal.Model,
		ExtractionTime:     time.Now().UTC(),
		Status:             status,
		Issues:             verdict.SoftIssues,
		RetryAttempts:      attempts,
		FinalConfidence:    clamp01(cand.StatedConfidence * verdict.ConfidenceMultiplier),
		ClaimedName:        cand.ClaimedName,
		ClaimedDescription: cand.ClaimedDescription,
		Metrics:            cand.Metrics,
		SourceText:         cand.SourceText,
		PageNumbers:        cand.PageNumbers,
		UsedInModels:       []string{},
		UsedInDashboards:   []string{},
	}

	if err := o.store.CreateLineage(ctx, row); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist accepted extraction")
	}
	if o.observer != nil {
		o.observer.ExtractionAccepted(status, attempts)
	}

	zap.L().Info("extraction accepted",
		zap.String("extraction_id", row.ExtractionID),
		zap.String("document_hash", row.SourceDocumentHash),
		zap.String("status", string(row.Status)),
		zap.Int("attempts", attempts),
		zap.Float64("final_confidence", row.FinalConfidence),
	)
	return row, nil
}

func (o *Orchestrator) enqueueReview(ctx context.Context, doc model.SourceDocument, extractionContext string, history []string) {
	entry := &model.ReviewEntry{
		ID:                 uuid.NewString(),
		SourceDocumentURL:  doc.URL,
		SourceDocumentHash: doc.ContentHash,
		ExtractionContext:  extractionContext,
		IssueHistory:       history,
		Attempts:           o.cfg.MaxAttempts,
	}
	if err := o.store.EnqueueReview(ctx, entry); err != nil {
		// Review entries are best effort; the terminal error still surfaces.
		zap.L().Error("failed to enqueue review entry",
			zap.String("document_hash", doc.ContentHash),
			zap.Error(err))
	}
}

func (o *Orchestrator) logTransition(from, to State, attempt int, docHash string) {
	zap.L().Debug("extraction state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("attempt", attempt),
		zap.String("document_hash", docHash),
	)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
