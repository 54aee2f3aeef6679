package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the triage engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Events    EventsConfig    `yaml:"events"`
	Cases     CasesConfig     `yaml:"cases"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Alert     AlertConfig     `yaml:"alert"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EventsConfig configures the Elasticsearch event source and ticket destination.
type EventsConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Insecure          bool          `yaml:"insecure"`
	Timeout           time.Duration `yaml:"timeout"`
	SourceIndexPrefix string        `yaml:"sourceIndexPrefix"`
	DestIndexPrefix   string        `yaml:"destIndexPrefix"`
	DestIndexPattern  string        `yaml:"destIndexPattern"`
}

// CasesConfig configures the OpenSearch vector case store.
type CasesConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Insecure          bool          `yaml:"insecure"`
	Timeout           time.Duration `yaml:"timeout"`
	Index             string        `yaml:"index"`
	TicketVectorIndex string        `yaml:"ticketVectorIndex"`
	ThresholdsPath    string        `yaml:"thresholdsPath"`
}

// LLMConfig configures the generative summarizer/grouper backend.
type LLMConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the Bedrock embedding provider.
type EmbeddingConfig struct {
	Region     string `yaml:"region"`
	ModelID    string `yaml:"modelID"`
	Dimensions int    `yaml:"dimensions"`
}

// PipelineConfig tunes the batch orchestrator.
type PipelineConfig struct {
	DefaultThreshold float64       `yaml:"defaultThreshold"`
	BatchSizeCap     int           `yaml:"batchSizeCap"`
	ClassifyWorkers  int           `yaml:"classifyWorkers"`
	GroupWorkers     int           `yaml:"groupWorkers"`
	CatalogWorkers   int           `yaml:"catalogWorkers"`
	MaxGroupGap      time.Duration `yaml:"maxGroupGap"`
	SimilarLimit     int           `yaml:"similarLimit"`
	SimilarFloor     float64       `yaml:"similarFloor"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Redis-backed caching of reference stories.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	StoryTTL     time.Duration `yaml:"storyTTL"`
}

// AlertConfig controls outbound failure notifications.
type AlertConfig struct {
	SlackWebhookURL string `yaml:"slackWebhookURL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Events: EventsConfig{
			Timeout:           10 * time.Second,
			SourceIndexPrefix: "edr-ai-classified-",
			DestIndexPrefix:   "edr-ai-grouping-",
			DestIndexPattern:  "edr-ai-grouping-*",
		},
		Cases: CasesConfig{
			Timeout:           10 * time.Second,
			Index:             "edr-event-vectors",
			TicketVectorIndex: "ticket-vectors",
		},
		LLM: LLMConfig{
			Model:   "gpt-4.1",
			Timeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Region:     "ap-northeast-2",
			ModelID:    "amazon.titan-embed-text-v2:0",
			Dimensions: 256,
		},
		Pipeline: PipelineConfig{
			DefaultThreshold: 0.80,
			BatchSizeCap:     100,
			ClassifyWorkers:  10,
			GroupWorkers:     10,
			CatalogWorkers:   5,
			MaxGroupGap:      30 * time.Minute,
			SimilarLimit:     10,
			SimilarFloor:     0.90,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			StoryTTL:     10 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIAGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TRIAGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_USERNAME"); v != "" {
		cfg.Events.Username = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_PASSWORD"); v != "" {
		cfg.Events.Password = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_SOURCE_PREFIX"); v != "" {
		cfg.Events.SourceIndexPrefix = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_DEST_PREFIX"); v != "" {
		cfg.Events.DestIndexPrefix = v
	}
	if v := os.Getenv("TRIAGE_EVENTS_DEST_PATTERN"); v != "" {
		cfg.Events.DestIndexPattern = v
	}
	if v := os.Getenv("TRIAGE_CASES_URL"); v != "" {
		cfg.Cases.URL = v
	}
	if v := os.Getenv("TRIAGE_CASES_USERNAME"); v != "" {
		cfg.Cases.Username = v
	}
	if v := os.Getenv("TRIAGE_CASES_PASSWORD"); v != "" {
		cfg.Cases.Password = v
	}
	if v := os.Getenv("TRIAGE_CASES_INDEX"); v != "" {
		cfg.Cases.Index = v
	}
	if v := os.Getenv("TRIAGE_CASES_TICKET_VECTOR_INDEX"); v != "" {
		cfg.Cases.TicketVectorIndex = v
	}
	if v := os.Getenv("TRIAGE_CASES_THRESHOLDS_PATH"); v != "" {
		cfg.Cases.ThresholdsPath = v
	}
	if v := os.Getenv("TRIAGE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TRIAGE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TRIAGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TRIAGE_EMBEDDING_REGION"); v != "" {
		cfg.Embedding.Region = v
	}
	if v := os.Getenv("TRIAGE_EMBEDDING_MODEL_ID"); v != "" {
		cfg.Embedding.ModelID = v
	}
	if v := os.Getenv("TRIAGE_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("TRIAGE_DEFAULT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.DefaultThreshold = f
		}
	}
	if v := os.Getenv("TRIAGE_BATCH_SIZE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.BatchSizeCap = n
		}
	}
	if v := os.Getenv("TRIAGE_CLASSIFY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.ClassifyWorkers = n
		}
	}
	if v := os.Getenv("TRIAGE_GROUP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.GroupWorkers = n
		}
	}
	if v := os.Getenv("TRIAGE_CATALOG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.CatalogWorkers = n
		}
	}
	if v := os.Getenv("TRIAGE_MAX_GROUP_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.MaxGroupGap = d
		}
	}
	if v := os.Getenv("TRIAGE_SIMILAR_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.SimilarLimit = n
		}
	}
	if v := os.Getenv("TRIAGE_SIMILAR_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.SimilarFloor = f
		}
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TRIAGE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("TRIAGE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("TRIAGE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("TRIAGE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("TRIAGE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("TRIAGE_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("TRIAGE_CACHE_STORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.StoryTTL = d
		}
	}
	if v := os.Getenv("TRIAGE_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alert.SlackWebhookURL = v
	}
}
