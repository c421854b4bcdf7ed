package domain

// Priority is the derived three-level tag on a scored candidate
type Priority string

// priority levels, pure function of the total score
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NonBenchmarkCategory classifies why a candidate is not a real benchmark
type NonBenchmarkCategory string

// non-benchmark categories reported by the LLM
const (
	CategoryAlgorithmPaper  NonBenchmarkCategory = "algorithm_paper"
	CategorySystemFramework NonBenchmarkCategory = "system_framework"
	CategoryToolSDK         NonBenchmarkCategory = "tool_sdk"
	CategoryModelRelease    NonBenchmarkCategory = "model_release"
	CategoryNone            NonBenchmarkCategory = ""
)

// ScoreWeights holds the weighted-sum coefficients for the five required dimensions
type ScoreWeights struct {
	Activity        float64 `yaml:"activity"`
	Reproducibility float64 `yaml:"reproducibility"`
	License         float64 `yaml:"license"`
	Novelty         float64 `yaml:"novelty"`
	Relevance       float64 `yaml:"relevance"`
}

// DefaultWeights is the current snapshot of the dimension weights, overridable in config
var DefaultWeights = ScoreWeights{
	Activity:        0.15,
	Reproducibility: 0.30,
	License:         0.15,
	Novelty:         0.15,
	Relevance:       0.25,
}

// penalties applied to the weighted sum for non-benchmark candidates
const (
	algorithmPaperPenalty = 5.0
	nonBenchmarkPenalty   = 3.0
)

// TaskDomains is the fixed vocabulary for the task_domain extraction field
var TaskDomains = []string{
	"Coding", "WebDev", "Backend", "GUI",
	"ToolUse", "Collaboration", "LLM/AgentOps",
	"Reasoning", "DeepResearch",
	"Other",
}

// DefaultTaskDomain is used when the LLM returns a value outside the vocabulary
const DefaultTaskDomain = "Other"

// Scores is the complete LLM scoring output for one candidate
type Scores struct {
	Activity        float64 `json:"activity_score"`
	Reproducibility float64 `json:"reproducibility_score"`
	License         float64 `json:"license_score"`
	Novelty         float64 `json:"novelty_score"`
	Relevance       float64 `json:"relevance_score"`

	ActivityReasoning        string `json:"activity_reasoning"`
	ReproducibilityReasoning string `json:"reproducibility_reasoning"`
	LicenseReasoning         string `json:"license_reasoning"`
	NoveltyReasoning         string `json:"novelty_reasoning"`
	RelevanceReasoning       string `json:"relevance_reasoning"`

	OverallReasoning string `json:"overall_reasoning"`

	// backend specialty, present only when the LLM classifies the candidate
	// as a backend benchmark
	IsBackendBenchmark   bool    `json:"is_backend_benchmark"`
	BackendRelevance     float64 `json:"backend_relevance_score,omitempty"`
	BackendReasoning     string  `json:"backend_relevance_reasoning,omitempty"`
	BackendEngineering   float64 `json:"backend_engineering_score,omitempty"`
	BackendEngReasoning  string  `json:"backend_engineering_reasoning,omitempty"`

	// classification
	IsNotBenchmark       bool                 `json:"is_not_benchmark"`
	NonBenchmarkCategory NonBenchmarkCategory `json:"non_benchmark_category"`
	ToolReasoning        string               `json:"tool_reasoning"`

	// extraction
	TaskDomain  string   `json:"task_domain"`
	Metrics     []string `json:"metrics"`
	Baselines   []string `json:"baselines"`
	Institution string   `json:"institution"`
	DatasetSize *int64   `json:"dataset_size"`
}

// ScoredCandidate is a RawCandidate with scoring output attached
type ScoredCandidate struct {
	RawCandidate
	Scores

	// Fallback marks candidates scored by the deterministic rule scorer when
	// the LLM was unavailable; reasoning length checks don't apply to them
	Fallback bool
}

// TotalScore is the weighted sum of the five required dimensions minus the
// non-benchmark penalty, clamped to [0,10]
func (s *ScoredCandidate) TotalScore(w ScoreWeights) float64 {
	total := s.Activity*w.Activity +
		s.Reproducibility*w.Reproducibility +
		s.License*w.License +
		s.Novelty*w.Novelty +
		s.Relevance*w.Relevance

	switch {
	case s.NonBenchmarkCategory == CategoryAlgorithmPaper:
		total -= algorithmPaperPenalty
	case s.IsNotBenchmark:
		total -= nonBenchmarkPenalty
	}

	if total < 0 {
		return 0
	}
	if total > 10 {
		return 10
	}
	return total
}

// Priority derives the three-level tag from the total score
func (s *ScoredCandidate) Priority(w ScoreWeights) Priority {
	return PriorityFor(s.TotalScore(w))
}

// PriorityFor maps a total score to its priority level
func PriorityFor(total float64) Priority {
	switch {
	case total >= 8.0:
		return PriorityHigh
	case total >= 6.0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
