package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL         string   `yaml:"base_url"`
		RankedModels    []string `yaml:"ranked_models"`
		MaxTokens       int      `yaml:"max_tokens"`
		Temperature     float64  `yaml:"temperature"`
		RateLimit       float64  `yaml:"rate_limit"`
		RankTimeoutsSec []int    `yaml:"rank_timeouts_seconds"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Pipeline struct {
		Workers           int `yaml:"workers"`
		MaxGleaningRounds int `yaml:"max_gleaning_rounds"`
		EntityNameCap     int `yaml:"entity_name_cap"`
	} `yaml:"pipeline"`

	Gate struct {
		MinEntitiesPerChunk float64 `yaml:"min_entities_per_chunk"`
		ZeroRelationStreak  int     `yaml:"zero_relation_streak"`
		Rank3AlertFraction  float64 `yaml:"rank3_alert_fraction"`
		CascadeWindow       int     `yaml:"cascade_window"`
	} `yaml:"gate"`

	Maintenance struct {
		BatchSize int `yaml:"batch_size"`
	} `yaml:"maintenance"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/graphloom/config.yaml"),
			"/etc/graphloom/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if len(config.LLM.RankedModels) == 0 {
		config.LLM.RankedModels = []string{"llama3", "mistral"}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 2.0
	}
	if len(config.LLM.RankTimeoutsSec) == 0 {
		// Rank 1 gets the longest budget, later ranks shrink.
		config.LLM.RankTimeoutsSec = []int{180, 90}
	}

	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 4
	}
	if config.Pipeline.MaxGleaningRounds == 0 {
		config.Pipeline.MaxGleaningRounds = 2
	}
	if config.Pipeline.EntityNameCap == 0 {
		config.Pipeline.EntityNameCap = 30
	}

	if config.Gate.MinEntitiesPerChunk == 0 {
		config.Gate.MinEntitiesPerChunk = 1.0
	}
	if config.Gate.ZeroRelationStreak == 0 {
		config.Gate.ZeroRelationStreak = 3
	}
	if config.Gate.Rank3AlertFraction == 0 {
		config.Gate.Rank3AlertFraction = 0.10
	}
	if config.Gate.CascadeWindow == 0 {
		config.Gate.CascadeWindow = 50
	}

	if config.Maintenance.BatchSize == 0 {
		config.Maintenance.BatchSize = 500
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
