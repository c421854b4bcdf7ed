package domain

import "time"

// Source identifies the upstream a candidate was collected from
type Source string

// known candidate sources
const (
	SourceArxiv           Source = "arxiv"
	SourceGitHub          Source = "github"
	SourceHuggingFace     Source = "huggingface"
	SourceHELM            Source = "helm"
	SourceTechEmpower     Source = "techempower"
	SourceDBEngines       Source = "dbengines"
	SourceSemanticScholar Source = "semantic_scholar"
)

// ValidSources is the set of sources the pipeline accepts
var ValidSources = map[Source]bool{
	SourceArxiv:           true,
	SourceGitHub:          true,
	SourceHuggingFace:     true,
	SourceHELM:            true,
	SourceTechEmpower:     true,
	SourceDBEngines:       true,
	SourceSemanticScholar: true,
}

// TrustedSources pass the prefilter keyword rules without checks, their upstream
// curation is considered sufficient
var TrustedSources = map[Source]bool{
	SourceHELM:        true,
	SourceTechEmpower: true,
	SourceDBEngines:   true,
}

// DisplayName returns the human-facing source name used in notification cards
func (s Source) DisplayName() string {
	names := map[Source]string{
		SourceArxiv:           "arXiv",
		SourceGitHub:          "GitHub",
		SourceHuggingFace:     "HuggingFace",
		SourceHELM:            "HELM",
		SourceTechEmpower:     "TechEmpower",
		SourceDBEngines:       "DB-Engines",
		SourceSemanticScholar: "Semantic Scholar",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return string(s)
}

// RawCandidate is the uniform record every collector maps its upstream schema into.
// Source-specific fields are left zero for sources that don't have them.
type RawCandidate struct {
	Title       string
	URL         string
	Source      Source
	Abstract    string // plain text, may be a README body for code sources
	Authors     []string
	PublishDate time.Time // UTC; zero when upstream doesn't report it

	// source-specific
	GitHubStars       int
	GitHubURL         string
	DatasetURL        string
	PaperURL          string
	LicenseType       string
	TaskType          string
	EvaluationMetrics []string

	// coarse extraction done at collect time, refined later by the LLM
	RawMetrics      []string
	RawBaselines    []string
	RawInstitutions string
	RawDatasetSize  string

	// enhancement
	RawMetadata  map[string]string // evaluation_summary, dataset_summary, baselines_summary, ...
	HeroImageURL string
	HeroImageKey string // chat platform identifier returned after image upload
}

// SetMeta stores a key in RawMetadata, allocating the map on first use
func (c *RawCandidate) SetMeta(key, value string) {
	if c.RawMetadata == nil {
		c.RawMetadata = map[string]string{}
	}
	c.RawMetadata[key] = value
}

// Meta reads a RawMetadata key, empty string when absent
func (c *RawCandidate) Meta(key string) string {
	if c.RawMetadata == nil {
		return ""
	}
	return c.RawMetadata[key]
}
