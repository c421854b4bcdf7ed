package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/umputun/benchscope/pkg/domain"
)

// Config holds the application configuration
type Config struct {
	Sources  SourcesConfig  `yaml:"sources"`
	LLM      LLMConfig      `yaml:"llm"`
	Enhancer EnhancerConfig `yaml:"enhancer"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Cache    CacheConfig    `yaml:"cache"`

	Logs struct {
		Directory string `yaml:"directory"`
	} `yaml:"logs"`
}

// SourcesConfig holds one section per collector
type SourcesConfig struct {
	Arxiv           ArxivConfig           `yaml:"arxiv"`
	GitHub          GitHubConfig          `yaml:"github"`
	HuggingFace     HuggingFaceConfig     `yaml:"huggingface"`
	HELM            HELMConfig            `yaml:"helm"`
	TechEmpower     TechEmpowerConfig     `yaml:"techempower"`
	DBEngines       DBEnginesConfig       `yaml:"dbengines"`
	SemanticScholar SemanticScholarConfig `yaml:"semantic_scholar"`
}

// ArxivConfig configures the arXiv collector
type ArxivConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	MaxResults    int           `yaml:"max_results"`
	LookbackHours int           `yaml:"lookback_hours"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	Keywords      []string      `yaml:"keywords"`
	Categories    []string      `yaml:"categories"`
}

// GitHubConfig configures the GitHub search collector
type GitHubConfig struct {
	Enabled         bool          `yaml:"enabled"`
	APIURL          string        `yaml:"api_url"`
	Token           string        `yaml:"token"`
	Topics          []string      `yaml:"topics"`
	TopicBlacklist  []string      `yaml:"topic_blacklist"`
	PerTopic        int           `yaml:"per_topic"`
	LookbackDays    int           `yaml:"lookback_days"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	MinReadmeLength int           `yaml:"min_readme_length"`
}

// HuggingFaceConfig configures the hub collector
type HuggingFaceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIURL       string        `yaml:"api_url"`
	Token        string        `yaml:"token"`
	Keywords     []string      `yaml:"keywords"`
	MinDownloads int           `yaml:"min_downloads"`
	MaxResults   int           `yaml:"max_results"`
	LookbackDays int           `yaml:"lookback_days"`
	Timeout      time.Duration `yaml:"timeout"`
}

// HELMConfig configures the HELM leaderboard collector
type HELMConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	StorageBase       string        `yaml:"storage_base"`
	DefaultRelease    string        `yaml:"default_release"`
	Timeout           time.Duration `yaml:"timeout"`
	AllowedScenarios  []string      `yaml:"allowed_scenarios"`
	ExcludedScenarios []string      `yaml:"excluded_scenarios"`
}

// TechEmpowerConfig configures the framework benchmark collector
type TechEmpowerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MinCompositeScore float64       `yaml:"min_composite_score"`
}

// DBEnginesConfig configures the database ranking collector
type DBEnginesConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxResults int           `yaml:"max_results"`
}

// SemanticScholarConfig configures the optional Semantic Scholar collector
type SemanticScholarConfig struct {
	Enabled    bool          `yaml:"enabled"`
	APIURL     string        `yaml:"api_url"`
	Keywords   []string      `yaml:"keywords"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig holds scorer configuration
type LLMConfig struct {
	Endpoint    string              `yaml:"endpoint"`
	APIKey      string              `yaml:"api_key"`
	Model       string              `yaml:"model"`
	Temperature float64             `yaml:"temperature"`
	MaxTokens   int                 `yaml:"max_tokens"`
	Timeout     time.Duration       `yaml:"timeout"`
	Concurrency int                 `yaml:"concurrency"`
	MaxRetries  int                 `yaml:"max_retries"`
	CacheTTL    time.Duration       `yaml:"cache_ttl"`
	Weights     domain.ScoreWeights `yaml:"weights"`
}

// EnhancerConfig holds PDF enhancement settings
type EnhancerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CacheDir      string        `yaml:"cache_dir"`
	ParserURL     string        `yaml:"parser_url"` // structured PDF parsing service
	Concurrency   int           `yaml:"concurrency"`
	Timeout       time.Duration `yaml:"timeout"`
	RenderDPI     int           `yaml:"render_dpi"`
	ImageKeyTTL   time.Duration `yaml:"image_key_ttl"`
	UploadURL     string        `yaml:"upload_url"` // chat platform image endpoint
	MaxSummaryLen int           `yaml:"max_summary_len"`
}

// StorageConfig holds primary and fallback store settings
type StorageConfig struct {
	BaseURL      string        `yaml:"base_url"`
	AppID        string        `yaml:"app_id"`
	AppSecret    string        `yaml:"app_secret"`
	AppToken     string        `yaml:"app_token"`
	TableID      string        `yaml:"table_id"`
	TableURL     string        `yaml:"table_url"` // human-facing link used in cards
	Timeout      time.Duration `yaml:"timeout"`
	BatchSize    int           `yaml:"batch_size"`
	BatchPause   time.Duration `yaml:"batch_pause"`
	FallbackDSN  string        `yaml:"fallback_dsn"`
	Retention    time.Duration `yaml:"retention"` // purge synced fallback rows older than this
	DedupWindows DedupWindows  `yaml:"dedup_windows"`
}

// DedupWindows bounds the existing-rows search per source when deduplicating on save
type DedupWindows struct {
	Arxiv       time.Duration `yaml:"arxiv"`
	HuggingFace time.Duration `yaml:"huggingface"`
	GitHub      time.Duration `yaml:"github"`
	Default     time.Duration `yaml:"default"`
}

// For returns the dedup window for a source
func (d DedupWindows) For(src domain.Source) time.Duration {
	switch src {
	case domain.SourceArxiv:
		return d.Arxiv
	case domain.SourceHuggingFace:
		return d.HuggingFace
	case domain.SourceGitHub:
		return d.GitHub
	default:
		return d.Default
	}
}

// NotifyConfig holds webhook notification settings
type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxNotifyCount int           `yaml:"max_notify_count"`
	TopHighCards   int           `yaml:"top_high_cards"`
	SummaryTopK    int           `yaml:"summary_top_k"`
	PushPause      time.Duration `yaml:"push_pause"`
	HistoryDSN     string        `yaml:"history_dsn"`
}

// CacheConfig holds the optional external KV cache settings
type CacheConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file, expands environment variables
// and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults fills zero values with operational defaults
func (c *Config) setDefaults() {
	if c.Logs.Directory == "" {
		c.Logs.Directory = "logs"
	}

	// arxiv
	if c.Sources.Arxiv.BaseURL == "" {
		c.Sources.Arxiv.BaseURL = "https://export.arxiv.org/api/query"
	}
	if c.Sources.Arxiv.MaxResults == 0 {
		c.Sources.Arxiv.MaxResults = 50
	}
	if c.Sources.Arxiv.LookbackHours == 0 {
		c.Sources.Arxiv.LookbackHours = 168
	}
	if c.Sources.Arxiv.Timeout == 0 {
		c.Sources.Arxiv.Timeout = 20 * time.Second
	}
	if c.Sources.Arxiv.MaxRetries == 0 {
		c.Sources.Arxiv.MaxRetries = 2
	}
	if len(c.Sources.Arxiv.Keywords) == 0 {
		c.Sources.Arxiv.Keywords = defaultArxivKeywords
	}
	if len(c.Sources.Arxiv.Categories) == 0 {
		c.Sources.Arxiv.Categories = defaultArxivCategories
	}

	// github
	if c.Sources.GitHub.APIURL == "" {
		c.Sources.GitHub.APIURL = "https://api.github.com"
	}
	if c.Sources.GitHub.PerTopic == 0 {
		c.Sources.GitHub.PerTopic = 5
	}
	if c.Sources.GitHub.LookbackDays == 0 {
		c.Sources.GitHub.LookbackDays = 30
	}
	if c.Sources.GitHub.Timeout == 0 {
		c.Sources.GitHub.Timeout = 5 * time.Second
	}
	if c.Sources.GitHub.MaxRetries == 0 {
		c.Sources.GitHub.MaxRetries = 3
	}
	if c.Sources.GitHub.MinReadmeLength == 0 {
		c.Sources.GitHub.MinReadmeLength = 500
	}
	if len(c.Sources.GitHub.Topics) == 0 {
		c.Sources.GitHub.Topics = defaultGitHubTopics
	}
	if len(c.Sources.GitHub.TopicBlacklist) == 0 {
		c.Sources.GitHub.TopicBlacklist = defaultGitHubTopicBlacklist
	}

	// huggingface
	if c.Sources.HuggingFace.APIURL == "" {
		c.Sources.HuggingFace.APIURL = "https://huggingface.co/api/datasets"
	}
	if c.Sources.HuggingFace.MinDownloads == 0 {
		c.Sources.HuggingFace.MinDownloads = 100
	}
	if c.Sources.HuggingFace.MaxResults == 0 {
		c.Sources.HuggingFace.MaxResults = 50
	}
	if c.Sources.HuggingFace.LookbackDays == 0 {
		c.Sources.HuggingFace.LookbackDays = 14
	}
	if c.Sources.HuggingFace.Timeout == 0 {
		c.Sources.HuggingFace.Timeout = 15 * time.Second
	}
	if len(c.Sources.HuggingFace.Keywords) == 0 {
		c.Sources.HuggingFace.Keywords = defaultHuggingFaceKeywords
	}

	// helm
	if c.Sources.HELM.BaseURL == "" {
		c.Sources.HELM.BaseURL = "https://crfm.stanford.edu/helm/classic/latest/"
	}
	if c.Sources.HELM.StorageBase == "" {
		c.Sources.HELM.StorageBase = "https://storage.googleapis.com/crfm-helm-public/benchmark_output"
	}
	if c.Sources.HELM.DefaultRelease == "" {
		c.Sources.HELM.DefaultRelease = "v0.4.0"
	}
	if c.Sources.HELM.Timeout == 0 {
		c.Sources.HELM.Timeout = 20 * time.Second
	}
	if len(c.Sources.HELM.AllowedScenarios) == 0 {
		c.Sources.HELM.AllowedScenarios = defaultHELMAllowed
	}
	if len(c.Sources.HELM.ExcludedScenarios) == 0 {
		c.Sources.HELM.ExcludedScenarios = defaultHELMExcluded
	}

	// techempower
	if c.Sources.TechEmpower.BaseURL == "" {
		c.Sources.TechEmpower.BaseURL = "https://tfb-status.techempower.com"
	}
	if c.Sources.TechEmpower.Timeout == 0 {
		c.Sources.TechEmpower.Timeout = 15 * time.Second
	}
	if c.Sources.TechEmpower.MinCompositeScore == 0 {
		c.Sources.TechEmpower.MinCompositeScore = 50.0
	}

	// dbengines
	if c.Sources.DBEngines.BaseURL == "" {
		c.Sources.DBEngines.BaseURL = "https://db-engines.com/en"
	}
	if c.Sources.DBEngines.Timeout == 0 {
		c.Sources.DBEngines.Timeout = 15 * time.Second
	}
	if c.Sources.DBEngines.MaxResults == 0 {
		c.Sources.DBEngines.MaxResults = 50
	}

	// semantic scholar, disabled by default
	if c.Sources.SemanticScholar.APIURL == "" {
		c.Sources.SemanticScholar.APIURL = "https://api.semanticscholar.org/graph/v1/paper/search"
	}
	if c.Sources.SemanticScholar.MaxResults == 0 {
		c.Sources.SemanticScholar.MaxResults = 100
	}
	if c.Sources.SemanticScholar.Timeout == 0 {
		c.Sources.SemanticScholar.Timeout = 15 * time.Second
	}
	if len(c.Sources.SemanticScholar.Keywords) == 0 {
		c.Sources.SemanticScholar.Keywords = []string{"benchmark", "evaluation", "dataset", "leaderboard", "test set"}
	}

	// llm
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.Concurrency == 0 {
		c.LLM.Concurrency = 50
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.CacheTTL == 0 {
		c.LLM.CacheTTL = 7 * 24 * time.Hour
	}
	if c.LLM.Weights == (domain.ScoreWeights{}) {
		c.LLM.Weights = domain.DefaultWeights
	}

	// enhancer
	if c.Enhancer.CacheDir == "" {
		c.Enhancer.CacheDir = os.TempDir() + "/benchscope-pdf-cache"
	}
	if c.Enhancer.Concurrency == 0 {
		c.Enhancer.Concurrency = 3
	}
	if c.Enhancer.Timeout == 0 {
		c.Enhancer.Timeout = 30 * time.Second
	}
	if c.Enhancer.RenderDPI == 0 {
		c.Enhancer.RenderDPI = 150
	}
	if c.Enhancer.ImageKeyTTL == 0 {
		c.Enhancer.ImageKeyTTL = 30 * 24 * time.Hour
	}
	if c.Enhancer.MaxSummaryLen == 0 {
		c.Enhancer.MaxSummaryLen = 1000
	}

	// storage
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "https://open.feishu.cn/open-apis"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 15 * time.Second
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = 20
	}
	if c.Storage.BatchPause == 0 {
		c.Storage.BatchPause = 600 * time.Millisecond
	}
	if c.Storage.FallbackDSN == "" {
		c.Storage.FallbackDSN = "file:fallback.db?cache=shared&mode=rwc"
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = 7 * 24 * time.Hour
	}
	if c.Storage.DedupWindows.Arxiv == 0 {
		c.Storage.DedupWindows.Arxiv = 7 * 24 * time.Hour
	}
	if c.Storage.DedupWindows.HuggingFace == 0 {
		c.Storage.DedupWindows.HuggingFace = 14 * 24 * time.Hour
	}
	if c.Storage.DedupWindows.GitHub == 0 {
		c.Storage.DedupWindows.GitHub = 30 * 24 * time.Hour
	}
	if c.Storage.DedupWindows.Default == 0 {
		c.Storage.DedupWindows.Default = 60 * 24 * time.Hour
	}

	// notify
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Notify.MaxNotifyCount == 0 {
		c.Notify.MaxNotifyCount = 3
	}
	if c.Notify.TopHighCards == 0 {
		c.Notify.TopHighCards = 3
	}
	if c.Notify.SummaryTopK == 0 {
		c.Notify.SummaryTopK = 5
	}
	if c.Notify.PushPause == 0 {
		c.Notify.PushPause = 500 * time.Millisecond
	}
	if c.Notify.HistoryDSN == "" {
		c.Notify.HistoryDSN = "file:notification_history.db?cache=shared&mode=rwc"
	}

	// cache
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "benchscope:"
	}
}

// validate checks configuration for correctness; a failure here refuses the run
func (c *Config) validate() error {
	if c.LLM.Endpoint == "" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key or llm.endpoint is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.Concurrency < 1 {
		return fmt.Errorf("llm.concurrency must be at least 1")
	}
	w := c.LLM.Weights
	if w.Activity < 0 || w.Reproducibility < 0 || w.License < 0 || w.Novelty < 0 || w.Relevance < 0 {
		return fmt.Errorf("llm.weights must be non-negative")
	}

	if c.Storage.AppID == "" || c.Storage.AppSecret == "" {
		return fmt.Errorf("storage.app_id and storage.app_secret are required")
	}
	if c.Storage.AppToken == "" || c.Storage.TableID == "" {
		return fmt.Errorf("storage.app_token and storage.table_id are required")
	}
	if c.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be at least 1")
	}

	return nil
}

// EnabledSources returns the set of sources allowed by configuration
func (c *Config) EnabledSources() map[domain.Source]bool {
	return map[domain.Source]bool{
		domain.SourceArxiv:           c.Sources.Arxiv.Enabled,
		domain.SourceGitHub:          c.Sources.GitHub.Enabled,
		domain.SourceHuggingFace:     c.Sources.HuggingFace.Enabled,
		domain.SourceHELM:            c.Sources.HELM.Enabled,
		domain.SourceTechEmpower:     c.Sources.TechEmpower.Enabled,
		domain.SourceDBEngines:       c.Sources.DBEngines.Enabled,
		domain.SourceSemanticScholar: c.Sources.SemanticScholar.Enabled,
	}
}
