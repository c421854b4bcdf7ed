package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// fakeLLM replays canned responses and records the requests it saw
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return openai.ChatCompletionResponse{}, f.errs[idx]
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.responses[idx]}},
		},
	}, nil
}

func llmConfig() config.LLMConfig {
	return config.LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0.2,
		MaxTokens:   2000,
		Timeout:     5 * time.Second,
		Concurrency: 4,
		CacheTTL:    time.Hour,
		Weights:     domain.DefaultWeights,
	}
}

func testCandidate() domain.RawCandidate {
	return domain.RawCandidate{
		Title:       "AgentArena: Multi-Agent Coding Benchmark",
		URL:         "https://arxiv.org/abs/2401.00001",
		Source:      domain.SourceArxiv,
		Abstract:    "A benchmark with 500 tasks, Pass@k metrics and GPT-4 baselines.",
		GitHubStars: 1200,
		GitHubURL:   "https://github.com/acme/agentarena",
	}
}

func validResponse(t *testing.T, mutate func(map[string]any)) string {
	t.Helper()
	long := strings.Repeat("Concrete factual reasoning with numbers and specifics. ", 5) // >150 chars
	resp := map[string]any{
		"activity_score":            8.0,
		"reproducibility_score":     9.0,
		"license_score":             8.0,
		"novelty_score":             7.0,
		"relevance_score":           9.0,
		"activity_reasoning":        long,
		"reproducibility_reasoning": long,
		"license_reasoning":         long,
		"novelty_reasoning":         long,
		"relevance_reasoning":       long,
		"overall_reasoning":         "Real benchmark with a test set, metrics and baselines.",
		"is_backend_benchmark":      false,
		"is_not_benchmark":          false,
		"non_benchmark_category":    "",
		"tool_reasoning":            strings.Repeat("This is a genuine benchmark because it ships a dataset. ", 3),
		"task_domain":               "Coding",
		"metrics":                   []string{"Pass@k"},
		"baselines":                 []string{"GPT-4"},
		"institution":               "Acme University",
		"dataset_size":              500,
	}
	if mutate != nil {
		mutate(resp)
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func TestScoreValidResponse(t *testing.T) {
	llm := &fakeLLM{responses: []string{validResponse(t, nil)}}
	s := NewWithClient(llmConfig(), llm, nil)

	scored, err := s.Score(context.Background(), testCandidate())
	require.NoError(t, err)

	assert.Equal(t, 8.0, scored.Activity)
	assert.False(t, scored.Fallback)
	assert.Equal(t, "Coding", scored.TaskDomain)
	require.NotNil(t, scored.DatasetSize)
	assert.EqualValues(t, 500, *scored.DatasetSize)
	assert.Len(t, llm.requests, 1)

	// prompt folds candidate fields in
	prompt := llm.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "AgentArena")
	assert.Contains(t, prompt, "GitHub stars: 1200")
	assert.True(t, llm.requests[0].Messages[0].Role == openai.ChatMessageRoleSystem)
}

func TestScoreRepairLoop(t *testing.T) {
	short := validResponse(t, func(m map[string]any) { m["novelty_reasoning"] = "too short" })
	llm := &fakeLLM{responses: []string{short, validResponse(t, nil)}}
	s := NewWithClient(llmConfig(), llm, nil)

	scored, err := s.Score(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.Equal(t, 7.0, scored.Novelty)
	require.Len(t, llm.requests, 2, "one repair round expected")

	// repair turn carries the prior assistant response and the lengthen request
	repairMsgs := llm.requests[1].Messages
	require.Len(t, repairMsgs, 4)
	assert.Equal(t, openai.ChatMessageRoleAssistant, repairMsgs[2].Role)
	assert.Contains(t, repairMsgs[3].Content, "novelty_reasoning")

	_, _, repairs := s.Stats()
	assert.Equal(t, 1, repairs)
}

func TestScoreRepairExhaustion(t *testing.T) {
	short := validResponse(t, func(m map[string]any) { m["activity_reasoning"] = "nope" })
	llm := &fakeLLM{responses: []string{short, short, short}}
	s := NewWithClient(llmConfig(), llm, nil)

	_, err := s.Score(context.Background(), testCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activity_reasoning")
	assert.Len(t, llm.requests, 3, "initial call plus two repairs")
}

func TestScoreMalformedThenFixed(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json at all", validResponse(t, nil)}}
	s := NewWithClient(llmConfig(), llm, nil)

	scored, err := s.Score(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.Equal(t, 9.0, scored.Relevance)
}

func TestScoreBackendReasoningLength(t *testing.T) {
	resp := validResponse(t, func(m map[string]any) {
		m["is_backend_benchmark"] = true
		m["backend_relevance_score"] = 8.0
		m["backend_relevance_reasoning"] = "short"
		m["backend_engineering_score"] = 7.0
		m["backend_engineering_reasoning"] = strings.Repeat("Detailed backend engineering analysis with facts. ", 5)
	})
	llm := &fakeLLM{responses: []string{resp, resp, resp}}
	s := NewWithClient(llmConfig(), llm, nil)

	_, err := s.Score(context.Background(), testCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_relevance_reasoning")
}

func TestScoreFallbackOnTransportError(t *testing.T) {
	llm := &fakeLLM{
		responses: []string{""},
		errs:      []error{fmt.Errorf("connection refused")},
	}
	s := NewWithClient(llmConfig(), llm, nil)

	scored, err := s.Score(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.True(t, scored.Fallback)
	assert.Equal(t, 9.0, scored.Activity, "1200 stars maps to 9.0")
	assert.Equal(t, 9.0, scored.Reproducibility, "repo +3, dataset missing")

	_, fallbacks, _ := s.Stats()
	assert.Equal(t, 1, fallbacks)
}

func TestScoreNonBenchmarkPenaltyFlow(t *testing.T) {
	// scenario: algorithm paper scored 8.4 pre-penalty lands at 3.4 => low
	resp := validResponse(t, func(m map[string]any) {
		m["is_not_benchmark"] = true
		m["non_benchmark_category"] = "algorithm_paper"
		m["tool_reasoning"] = strings.Repeat("Algorithm contribution evaluated on HumanEval, no new dataset. ", 2)
	})
	llm := &fakeLLM{responses: []string{resp}}
	s := NewWithClient(llmConfig(), llm, nil)

	cand := testCandidate()
	cand.Title = "RPM-MCTS: A New Method for Code Generation"
	scored, err := s.Score(context.Background(), cand)
	require.NoError(t, err)

	// pre-penalty weighted sum: 8*.15+9*.30+8*.15+7*.15+9*.25 = 8.4 -> 3.4
	assert.InDelta(t, 3.4, scored.TotalScore(domain.DefaultWeights), 1e-9)
	assert.Equal(t, domain.PriorityLow, scored.Priority(domain.DefaultWeights))
}

func TestScoreBatchDropsFailures(t *testing.T) {
	short := validResponse(t, func(m map[string]any) { m["license_reasoning"] = "x" })
	llm := &fakeLLM{responses: []string{short}} // every call returns the broken payload
	s := NewWithClient(llmConfig(), llm, nil)

	cands := []domain.RawCandidate{testCandidate(), testCandidate()}
	cands[1].URL = "https://arxiv.org/abs/2401.00002"

	results := s.ScoreBatch(context.Background(), cands)
	assert.Empty(t, results, "validation failures are dropped, not fatal")
}

func TestScoreBatchConcurrent(t *testing.T) {
	llm := &fakeLLM{responses: []string{validResponse(t, nil)}}
	cfg := llmConfig()
	cfg.Concurrency = 2
	s := NewWithClient(cfg, llm, nil)

	cands := make([]domain.RawCandidate, 10)
	for i := range cands {
		cands[i] = testCandidate()
		cands[i].URL = fmt.Sprintf("https://arxiv.org/abs/2401.%05d", i)
	}

	results := s.ScoreBatch(context.Background(), cands)
	assert.Len(t, results, 10)
}

func TestFingerprintStable(t *testing.T) {
	c1 := testCandidate()
	c2 := testCandidate()
	c2.URL = "https://arxiv.org/abs/2401.00001v2" // canonicalizes to the same key
	assert.Equal(t, Fingerprint(c1), Fingerprint(c2))

	c3 := testCandidate()
	c3.Title = "Different title"
	assert.NotEqual(t, Fingerprint(c1), Fingerprint(c3))
}

func TestParseScoresCodeFence(t *testing.T) {
	inner := validResponse(t, nil)
	fenced := "```json\n" + inner + "\n```"
	scores, err := parseScores(fenced)
	require.NoError(t, err)
	assert.Equal(t, 8.0, scores.Activity)
}
