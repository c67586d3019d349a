package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig models the optional YAML config file. Pointer fields
// distinguish "absent" from zero values so only keys present in the file
// override defaults.
type fileConfig struct {
	BaseDir        *string  `yaml:"base_dir"`
	Session        *string  `yaml:"session"`
	SubjectPattern *string  `yaml:"subject_pattern"`
	Subjects       []string `yaml:"subjects"`
	Pipeline       *string  `yaml:"pipeline"`
	Threads        *int     `yaml:"threads"`
	MaxConcurrency *int     `yaml:"max_concurrency"`
	StepTimeout    *string  `yaml:"step_timeout"`
	DryRun         *bool    `yaml:"dry_run"`
	SummaryJSON    *bool    `yaml:"summary_json"`
	LogDir         *string  `yaml:"log_dir"`
	Verbose        *bool    `yaml:"verbose"`
	Color          *string  `yaml:"color"`
	LogFile        *string  `yaml:"log_file"`
}

// LoadFile reads a YAML config file and applies every key it sets onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := ApplyYAML(cfg, data); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// ApplyYAML decodes data and applies the keys it sets onto cfg. Unknown keys
// are rejected so typos surface at startup instead of silently falling back
// to defaults.
func ApplyYAML(cfg *Config, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	setString(&cfg.BaseDir, fc.BaseDir)
	setString(&cfg.Session, fc.Session)
	setString(&cfg.SubjectPattern, fc.SubjectPattern)
	setString(&cfg.Pipeline, fc.Pipeline)
	setString(&cfg.LogDir, fc.LogDir)
	setString(&cfg.LogFile, fc.LogFile)
	if fc.Subjects != nil {
		cfg.Subjects = append([]string(nil), fc.Subjects...)
	}
	if fc.Threads != nil {
		cfg.Threads = *fc.Threads
	}
	if fc.MaxConcurrency != nil {
		cfg.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.StepTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*fc.StepTimeout))
		if err != nil {
			return fmt.Errorf("step_timeout: %w", err)
		}
		cfg.StepTimeout = d
	}
	if fc.DryRun != nil {
		cfg.DryRun = *fc.DryRun
	}
	if fc.SummaryJSON != nil {
		cfg.SummaryJSON = *fc.SummaryJSON
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.Color != nil {
		v := colorModeValue{&cfg.ColorMode}
		if err := v.Set(*fc.Color); err != nil {
			return err
		}
	}
	if cfg.BaseDir != "" {
		cfg.BaseDir = NormalizeDirArg(cfg.BaseDir)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
