package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ScriptPath  string // .js file to run
	ModulesPath string // module manifests (.hcl)

	LogFormat        string
	LogLevel         string
	HealthcheckPort  int
	Timeout          time.Duration // 0 means no limit
	LateRegistration bool
	Describe         bool // print the function catalog instead of running a script
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ScriptPath == "" && !cfg.Describe {
		return nil, errors.New("ScriptPath is a required configuration field and cannot be empty")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("Timeout cannot be negative")
	}
	return &cfg, nil
}
