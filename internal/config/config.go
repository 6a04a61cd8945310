package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values merge in layers: built-in
// defaults, then an optional YAML file, then environment overrides.
type Config struct {
	Worker struct {
		// Endpoints is a comma-separated list of OpenAI-style base URLs
		// tried in order.
		Endpoints      string                `yaml:"endpoints"`
		Model          string                `yaml:"model"`
		APIKey         string                `yaml:"api_key"`
		TimeoutSeconds int                   `yaml:"timeout_seconds"`
		Offline        bool                  `yaml:"offline"`
		FanoutLimit    int                   `yaml:"fanout_limit"`
		Temperature    *float32              `yaml:"temperature,omitempty"`
		MaxTokens      *int                  `yaml:"max_tokens,omitempty"`
		Roles          map[string]RoleTuning `yaml:"roles,omitempty"`
	} `yaml:"worker"`

	Engine struct {
		ValidationRetries   int `yaml:"validation_retries"`
		PersonaLoopCeiling  int `yaml:"persona_loop_ceiling"`
		CaseFileLoopCeiling int `yaml:"case_file_loop_ceiling"`
	} `yaml:"engine"`

	Panel struct {
		SimilarityMax float64 `yaml:"similarity_max"`
		// Complexity cutoffs map the analyst's 1-5 score to a panel size.
		SmallMaxComplexity  float64 `yaml:"small_max_complexity"`
		MediumMaxComplexity float64 `yaml:"medium_max_complexity"`
		SmallSize           int     `yaml:"small_size"`
		MediumSize          int     `yaml:"medium_size"`
		LargeSize           int     `yaml:"large_size"`
	} `yaml:"panel"`

	Evidence struct {
		PrimaryCredibility   float64 `yaml:"primary_credibility"`
		SecondaryCredibility float64 `yaml:"secondary_credibility"`
		TertiaryCredibility  float64 `yaml:"tertiary_credibility"`
		CredibilityBedrock   float64 `yaml:"credibility_bedrock"`
		StatementMaxChars    int     `yaml:"statement_max_chars"`
		SourceMaxChars       int     `yaml:"source_max_chars"`
	} `yaml:"evidence"`

	Research struct {
		Endpoint          string `yaml:"endpoint"`
		APIKey            string `yaml:"api_key"`
		MinIntervalMillis int    `yaml:"min_interval_millis"`
		ResultCount       int    `yaml:"result_count"`
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		Enabled           bool   `yaml:"enabled"`
	} `yaml:"research"`

	Coverage struct {
		FactPreservationMin   float64 `yaml:"fact_preservation_min"`
		DivergenceCoverageMin float64 `yaml:"divergence_coverage_min"`
		NullCoverageMin       float64 `yaml:"null_coverage_min"`
	} `yaml:"coverage"`

	Output struct {
		Dir              string `yaml:"dir"`
		TraceFilename    string `yaml:"trace_filename"`
		StateFilename    string `yaml:"state_filename"`
		DecisionFilename string `yaml:"decision_filename"`
	} `yaml:"output"`

	UI struct {
		Verbose bool `yaml:"verbose"`
	} `yaml:"ui"`
}

// Default returns the built-in configuration every layer merges over.
func Default() Config {
	var cfg Config

	cfg.Worker.Endpoints = "http://localhost:1234/v1"
	cfg.Worker.TimeoutSeconds = 120
	cfg.Worker.FanoutLimit = 8

	cfg.Engine.ValidationRetries = 2
	cfg.Engine.PersonaLoopCeiling = 3
	cfg.Engine.CaseFileLoopCeiling = 3

	cfg.Panel.SimilarityMax = 0.70
	cfg.Panel.SmallMaxComplexity = 2.5
	cfg.Panel.MediumMaxComplexity = 4.0
	cfg.Panel.SmallSize = 3
	cfg.Panel.MediumSize = 5
	cfg.Panel.LargeSize = 7

	cfg.Evidence.PrimaryCredibility = 0.95
	cfg.Evidence.SecondaryCredibility = 0.75
	cfg.Evidence.TertiaryCredibility = 0.55
	cfg.Evidence.CredibilityBedrock = 0.80
	cfg.Evidence.StatementMaxChars = 10000
	cfg.Evidence.SourceMaxChars = 2000

	cfg.Research.Endpoint = "https://api.search.brave.com/res/v1/web/search"
	cfg.Research.MinIntervalMillis = 1100
	cfg.Research.ResultCount = 5
	cfg.Research.TimeoutSeconds = 20
	cfg.Research.Enabled = true

	cfg.Coverage.FactPreservationMin = 0.70
	cfg.Coverage.DivergenceCoverageMin = 0.90
	cfg.Coverage.NullCoverageMin = 1.0

	cfg.Output.Dir = "runs"
	cfg.Output.TraceFilename = "trace.jsonl"
	cfg.Output.StateFilename = "state.json"
	cfg.Output.DecisionFilename = "decision.md"

	return cfg
}

func DefaultPath() string {
	return "tribunal.yaml"
}

// Load layers an optional YAML file and environment overrides on top of the
// defaults. An explicitly given path must exist; the default path may be
// absent. Returns the loaded config and the file paths that contributed.
func Load(path string) (Config, []string, error) {
	merged, err := toMap(Default())
	if err != nil {
		return Config{}, nil, err
	}

	paths := []string{}
	required := path != ""
	if path == "" {
		path = DefaultPath()
	}
	applied, err := mergeFile(merged, path, required)
	if err != nil {
		return Config{}, paths, err
	}
	if applied {
		paths = append(paths, path)
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, paths, fmt.Errorf("marshal merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, paths, fmt.Errorf("unmarshal merged config: %w", err)
	}

	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, paths, err
	}
	return cfg, paths, nil
}

func toMap(cfg Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return out, nil
}

func mergeFile(dst map[string]any, path string, required bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return false, nil
		}
		return false, fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read config: %s: %w", path, err)
	}
	src := map[string]any{}
	if err := yaml.Unmarshal(data, &src); err != nil {
		return false, fmt.Errorf("parse config: %s: %w", path, err)
	}
	deepMerge(dst, src)
	return true, nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		if existing, ok := dst[key]; ok {
			if existingMap, ok := existing.(map[string]any); ok {
				deepMerge(existingMap, srcMap)
				continue
			}
		}
		newMap := map[string]any{}
		deepMerge(newMap, srcMap)
		dst[key] = newMap
	}
}

// applyEnv reads the overrides a deployment is most likely to keep out of a
// checked-in file. BRAVE_API_KEY is also honored because that is what the
// vendor's own examples export.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRIBUNAL_WORKER_ENDPOINTS"); v != "" {
		cfg.Worker.Endpoints = v
	}
	if v := os.Getenv("TRIBUNAL_WORKER_MODEL"); v != "" {
		cfg.Worker.Model = v
	}
	if v := os.Getenv("TRIBUNAL_WORKER_API_KEY"); v != "" {
		cfg.Worker.APIKey = v
	}
	if v := os.Getenv("TRIBUNAL_BRAVE_API_KEY"); v != "" {
		cfg.Research.APIKey = v
	} else if v := os.Getenv("BRAVE_API_KEY"); v != "" && cfg.Research.APIKey == "" {
		cfg.Research.APIKey = v
	}
	if v := os.Getenv("TRIBUNAL_OFFLINE"); v != "" {
		if offline, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.Offline = offline
		}
	}
}

// Validate rejects configurations the pipeline cannot run under.
func Validate(cfg Config) error {
	problems := []string{}
	check01 := func(name string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be in [0,1], got %v", name, v))
		}
	}
	check01("panel.similarity_max", cfg.Panel.SimilarityMax)
	check01("evidence.primary_credibility", cfg.Evidence.PrimaryCredibility)
	check01("evidence.secondary_credibility", cfg.Evidence.SecondaryCredibility)
	check01("evidence.tertiary_credibility", cfg.Evidence.TertiaryCredibility)
	check01("evidence.credibility_bedrock", cfg.Evidence.CredibilityBedrock)
	check01("coverage.fact_preservation_min", cfg.Coverage.FactPreservationMin)
	check01("coverage.divergence_coverage_min", cfg.Coverage.DivergenceCoverageMin)
	check01("coverage.null_coverage_min", cfg.Coverage.NullCoverageMin)

	if cfg.Engine.ValidationRetries < 0 {
		problems = append(problems, "engine.validation_retries must be >= 0")
	}
	if cfg.Engine.PersonaLoopCeiling < 1 {
		problems = append(problems, "engine.persona_loop_ceiling must be >= 1")
	}
	if cfg.Engine.CaseFileLoopCeiling < 1 {
		problems = append(problems, "engine.case_file_loop_ceiling must be >= 1")
	}
	if cfg.Panel.SmallSize < 1 || cfg.Panel.MediumSize < 1 || cfg.Panel.LargeSize < 1 {
		problems = append(problems, "panel sizes must be >= 1")
	}
	if cfg.Panel.SmallMaxComplexity > cfg.Panel.MediumMaxComplexity {
		problems = append(problems, "panel.small_max_complexity must not exceed panel.medium_max_complexity")
	}
	if cfg.Research.MinIntervalMillis < 0 {
		problems = append(problems, "research.min_interval_millis must be >= 0")
	}
	if cfg.Evidence.StatementMaxChars < 1 || cfg.Evidence.SourceMaxChars < 1 {
		problems = append(problems, "evidence char caps must be >= 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PanelSizeFor maps an analyst complexity score to the panel size the
// allocator must produce.
func (c Config) PanelSizeFor(complexity float64) int {
	switch {
	case complexity <= c.Panel.SmallMaxComplexity:
		return c.Panel.SmallSize
	case complexity <= c.Panel.MediumMaxComplexity:
		return c.Panel.MediumSize
	default:
		return c.Panel.LargeSize
	}
}

// Save writes a config as YAML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
