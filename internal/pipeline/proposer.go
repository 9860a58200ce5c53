package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/resilience"
	"github.com/sells-group/claimtrace/pkg/anthropic"
)

const proposalSystemPrompt = `You extract quantitative claims from documents. Respond with a single JSON object:
{
  "claimed_name": "snake_case metric name",
  "claimed_description": "one-sentence description of the claim",
  "metrics": {"metric_name": "value as it appears, e.g. \"10%\" or \"12 months\""},
  "source_text": "the exact verbatim quote from the document supporting the claim",
  "page_numbers": [1],
  "stated_confidence": 0.0
}
The source_text must be copied verbatim from the document. Every metric value must appear inside source_text. No prose outside the JSON object.`

// ClaudeProposer obtains candidate extractions from the Anthropic API. The
// document text rides in a cached system block so retry attempts and sibling
// extractions against the same document reuse the prompt cache.
type ClaudeProposer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retryCfg  resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	limiter   *rate.Limiter
}

// ProposerOption customizes a ClaudeProposer.
type ProposerOption func(*ClaudeProposer)

// WithRateLimiter bounds proposal-call throughput across all goroutines
// sharing this proposer.
func WithRateLimiter(l *rate.Limiter) ProposerOption {
	return func(p *ClaudeProposer) { p.limiter = l }
}

// WithCircuitBreaker trips the given breaker on repeated upstream failures.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ProposerOption {
	return func(p *ClaudeProposer) { p.breaker = cb }
}

// WithRetryConfig overrides the transient-error retry policy for each call.
func WithRetryConfig(cfg resilience.RetryConfig) ProposerOption {
	return func(p *ClaudeProposer) { p.retryCfg = cfg }
}

func NewClaudeProposer(client anthropic.Client, modelID string, maxTokens int64, opts ...ProposerOption) *ClaudeProposer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	p := &ClaudeProposer{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retryCfg:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prime warms the prompt cache for a document with one cheap sequential
// request, so concurrent extractions against the same document all hit the
// warm cache instead of each paying the cache write.
func (p *ClaudeProposer) Prime(ctx context.Context, doc model.SourceDocument) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "proposer: rate limit wait")
		}
	}

	resp, err := anthropic.PrimerRequest(ctx, p.client, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: 16,
		System: append(
			[]anthropic.SystemBlock{{Text: proposalSystemPrompt}},
			anthropic.BuildCachedSystemBlocks("<document>\n"+doc.FullText+"\n</document>")...,
		),
		Messages: []anthropic.Message{{Role: "user", Content: "Reply with OK."}},
	})
	if err != nil {
		return err
	}
	resp.Usage.LogCost(p.model, "primer")
	return nil
}

// Propose sends one extraction request and parses the returned candidate.
// Rate limiting, transient-error retry, and the circuit breaker all apply
// inside this call; the orchestrator sees one attempt either way.
func (p *ClaudeProposer) Propose(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "proposer: rate limit wait")
		}
	}

	msgReq := anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System: append(
			[]anthropic.SystemBlock{{Text: proposalSystemPrompt}},
			anthropic.BuildCachedSystemBlocks("<document>\n"+req.Document.FullText+"\n</document>")...,
		),
		Messages: []anthropic.Message{{Role: "user", Content: buildUserPrompt(req)}},
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, p.retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return p.client.CreateMessage(ctx, msgReq)
		})
	}

	var resp *anthropic.MessageResponse
	var err error
	if p.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, p.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "proposer: create message")
	}
	resp.Usage.LogCost(p.model, "proposal")

	cand, err := parseCandidate(resp.Text())
	if err != nil {
		return nil, err
	}
	return &Proposal{Candidate: cand, Model: resp.Model}, nil
}

func buildUserPrompt(req ProposalRequest) string {
	var sb strings.Builder
	sb.WriteString("Extract the following claim from the document: ")
	sb.WriteString(req.Context)
	sb.WriteString("\n")
	if len(req.Feedback) > 0 {
		sb.WriteString("\nYour previous attempt was rejected. Correct these problems:\n")
		for _, line := range req.Feedback {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	sb.WriteString("\nRespond with the JSON object only.")
	return sb.String()
}

// parseCandidate extracts a CandidateExtraction from an LLM response body.
func parseCandidate(text string) (model.CandidateExtraction, error) {
	var cand model.CandidateExtraction
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return cand, eris.New("proposer: empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), &cand); err != nil {
		return cand, eris.Wrap(err, "proposer: parse candidate JSON")
	}
	if cand.SourceText == "" {
		return cand, eris.New("proposer: candidate missing source_text")
	}
	return cand, nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
