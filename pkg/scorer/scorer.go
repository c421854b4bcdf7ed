// Package scorer runs the bounded-concurrency LLM scoring fan-out with
// result caching, schema validation and a repair loop for under-length
// reasoning fields.
package scorer

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-pkgz/lgr"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/benchscope/pkg/cache"
	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
	"github.com/umputun/benchscope/pkg/urlutil"
)

// minimum reasoning lengths enforced on the LLM response
const (
	minReasoningChars        = 150
	minBackendReasoningChars = 200
	minToolReasoningChars    = 100
	minOverallReasoningChars = 50
	maxRepairAttempts        = 2
)

// OpenAIClient is the slice of the chat API the scorer uses
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Scorer fans out structured scoring calls over candidates
type Scorer struct {
	client OpenAIClient
	cache  *cache.Cache
	cfg    config.LLMConfig

	// counters observable by tests and the run summary
	mu        sync.Mutex
	cacheHits int
	fallbacks int
	repairs   int
}

// New creates a scorer backed by an OpenAI-compatible endpoint
func New(cfg config.LLMConfig, resultCache *cache.Cache) *Scorer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return &Scorer{
		client: openai.NewClientWithConfig(clientCfg),
		cache:  resultCache,
		cfg:    cfg,
	}
}

// NewWithClient creates a scorer with an injected client, used by tests
func NewWithClient(cfg config.LLMConfig, client OpenAIClient, resultCache *cache.Cache) *Scorer {
	return &Scorer{client: client, cache: resultCache, cfg: cfg}
}

// Stats reports cache hits, fallback scores and repair invocations so far
func (s *Scorer) Stats() (cacheHits, fallbacks, repairs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheHits, s.fallbacks, s.repairs
}

// ScoreBatch scores all candidates with bounded concurrency. Candidates that
// fail after repair exhaustion and the rule fallback are dropped; the batch
// never aborts. Result order follows scoring completion, not input order.
func (s *Scorer) ScoreBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	results := make([]domain.ScoredCandidate, 0, len(candidates))
	var resultsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, cand := range candidates {
		g.Go(func() error {
			scored, err := s.Score(gctx, cand)
			if err != nil {
				lgr.Printf("[WARN] scoring dropped %q: %v", truncate(cand.Title, 60), err)
				return nil // per-candidate failures don't abort the batch
			}
			resultsMu.Lock()
			results = append(results, scored)
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	lgr.Printf("[INFO] scored %d/%d candidates", len(results), len(candidates))
	return results
}

// Score evaluates a single candidate: cache lookup, LLM call with validation
// and repair, rule fallback when the endpoint is unreachable
func (s *Scorer) Score(ctx context.Context, cand domain.RawCandidate) (domain.ScoredCandidate, error) {
	key := Fingerprint(cand)

	if payload, ok := s.cache.Get(ctx, "score:"+key); ok {
		var scores domain.Scores
		if err := json.Unmarshal([]byte(payload), &scores); err == nil {
			s.mu.Lock()
			s.cacheHits++
			s.mu.Unlock()
			lgr.Printf("[DEBUG] score cache hit for %q", truncate(cand.Title, 60))
			return s.assemble(cand, scores, false), nil
		}
		lgr.Printf("[WARN] corrupt cached score for %q, re-scoring", truncate(cand.Title, 60))
	}

	scores, err := s.callWithRepair(ctx, cand)
	if err != nil {
		if isValidationError(err) {
			return domain.ScoredCandidate{}, err
		}
		// endpoint unreachable, rule fallback keeps the candidate alive
		s.mu.Lock()
		s.fallbacks++
		s.mu.Unlock()
		lgr.Printf("[WARN] llm unavailable for %q, fallback=true rule scoring used: %v",
			truncate(cand.Title, 60), err)
		return s.assemble(cand, fallbackScores(cand), true), nil
	}

	if payload, merr := json.Marshal(scores); merr == nil {
		s.cache.Set(ctx, "score:"+key, string(payload), s.cfg.CacheTTL)
	}

	return s.assemble(cand, scores, false), nil
}

// Fingerprint keys the result cache on title + canonical URL
func Fingerprint(cand domain.RawCandidate) string {
	sum := md5.Sum([]byte(cand.Title + ":" + urlutil.Canonicalize(cand.URL))) //nolint:gosec // cache key
	return hex.EncodeToString(sum[:])
}

// validationError marks schema failures that survived the repair loop
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func isValidationError(err error) bool {
	var ve *validationError
	return errors.As(err, &ve)
}

// callWithRepair drives the await -> validate -> repair state machine with at
// most two repair turns
func (s *Scorer) callWithRepair(ctx context.Context, cand domain.RawCandidate) (domain.Scores, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildPrompt(cand)},
	}

	for attempt := 0; ; attempt++ {
		content, err := s.invoke(ctx, messages)
		if err != nil {
			return domain.Scores{}, fmt.Errorf("llm request: %w", err)
		}

		scores, parseErr := parseScores(content)
		if parseErr != nil {
			if attempt >= maxRepairAttempts {
				return domain.Scores{}, &validationError{fmt.Errorf("malformed response after %d attempts: %w", attempt+1, parseErr)}
			}
			messages = append(messages,
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser,
					Content: "The response was not valid JSON matching the schema. Return the full corrected JSON object only."})
			continue
		}

		short := underLengthFields(scores)
		if len(short) == 0 {
			normalize(&scores)
			return scores, nil
		}

		if attempt >= maxRepairAttempts {
			return domain.Scores{}, &validationError{fmt.Errorf("reasoning under minimum length after %d repairs: %s",
				maxRepairAttempts, strings.Join(short, ", "))}
		}

		s.mu.Lock()
		s.repairs++
		s.mu.Unlock()
		lgr.Printf("[DEBUG] repair attempt %d for %q: %s", attempt+1, truncate(cand.Title, 60), strings.Join(short, ", "))
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: repairPrompt(short)})
	}
}

// invoke makes one chat completion call with the configured timeout
func (s *Scorer) invoke(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: float32(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
		Messages:    messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty llm response")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseScores decodes the response, tolerating markdown code fences some
// models wrap around JSON even in JSON mode
func parseScores(content string) (domain.Scores, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var scores domain.Scores
	if err := json.Unmarshal([]byte(text), &scores); err != nil {
		return domain.Scores{}, fmt.Errorf("parse json: %w", err)
	}

	for name, v := range map[string]float64{
		"activity_score":        scores.Activity,
		"reproducibility_score": scores.Reproducibility,
		"license_score":         scores.License,
		"novelty_score":         scores.Novelty,
		"relevance_score":       scores.Relevance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Scores{}, fmt.Errorf("non-finite %s", name)
		}
	}

	return scores, nil
}

// underLengthFields lists reasoning fields below their minimum, with the
// required minimum attached for the repair prompt
func underLengthFields(s domain.Scores) []string {
	var short []string
	check := func(name, value string, min int) {
		if len(value) < min {
			short = append(short, fmt.Sprintf("%s (need >= %d chars, got %d)", name, min, len(value)))
		}
	}

	check("activity_reasoning", s.ActivityReasoning, minReasoningChars)
	check("reproducibility_reasoning", s.ReproducibilityReasoning, minReasoningChars)
	check("license_reasoning", s.LicenseReasoning, minReasoningChars)
	check("novelty_reasoning", s.NoveltyReasoning, minReasoningChars)
	check("relevance_reasoning", s.RelevanceReasoning, minReasoningChars)
	check("overall_reasoning", s.OverallReasoning, minOverallReasoningChars)

	if s.IsBackendBenchmark {
		check("backend_relevance_reasoning", s.BackendReasoning, minBackendReasoningChars)
		check("backend_engineering_reasoning", s.BackendEngReasoning, minBackendReasoningChars)
	}
	if s.IsNotBenchmark {
		check("tool_reasoning", s.ToolReasoning, minToolReasoningChars)
	}

	return short
}

// normalize clamps scores into [0,10] and snaps task_domain to the vocabulary
func normalize(s *domain.Scores) {
	clamp := func(v *float64) {
		if *v < 0 {
			*v = 0
		}
		if *v > 10 {
			*v = 10
		}
	}
	clamp(&s.Activity)
	clamp(&s.Reproducibility)
	clamp(&s.License)
	clamp(&s.Novelty)
	clamp(&s.Relevance)
	clamp(&s.BackendRelevance)
	clamp(&s.BackendEngineering)

	valid := false
	for _, d := range domain.TaskDomains {
		if s.TaskDomain == d {
			valid = true
			break
		}
	}
	if !valid {
		s.TaskDomain = domain.DefaultTaskDomain
	}

	switch s.NonBenchmarkCategory {
	case domain.CategoryAlgorithmPaper, domain.CategorySystemFramework,
		domain.CategoryToolSDK, domain.CategoryModelRelease, domain.CategoryNone:
	default:
		s.NonBenchmarkCategory = domain.CategoryNone
	}
}

func (s *Scorer) assemble(cand domain.RawCandidate, scores domain.Scores, fallback bool) domain.ScoredCandidate {
	return domain.ScoredCandidate{RawCandidate: cand, Scores: scores, Fallback: fallback}
}

// fallbackScores produces a minimally valid deterministic score set when the
// LLM endpoint is unreachable; reasoning strings stay short by design of the
// fallback invariant
func fallbackScores(cand domain.RawCandidate) domain.Scores {
	activity := 5.0
	switch {
	case cand.GitHubStars >= 1000:
		activity = 9.0
	case cand.GitHubStars >= 500:
		activity = 7.5
	case cand.GitHubStars >= 100:
		activity = 6.0
	}

	reproducibility := 3.0
	if cand.GitHubURL != "" {
		reproducibility += 3.0
	}
	if cand.DatasetURL != "" {
		reproducibility += 3.0
	}
	if reproducibility > 10 {
		reproducibility = 10
	}

	license := 5.0
	lowered := strings.ToLower(cand.LicenseType)
	switch {
	case strings.Contains(lowered, "mit"), strings.Contains(lowered, "apache"), strings.Contains(lowered, "bsd"):
		license = 8.0
	case cand.LicenseType == "":
		license = 4.0
	}

	return domain.Scores{
		Activity:        activity,
		Reproducibility: reproducibility,
		License:         license,
		Novelty:         5.0,
		Relevance:       5.0,
		OverallReasoning: "rule-based fallback scoring, LLM unavailable",
		TaskDomain:       domain.DefaultTaskDomain,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
