// seehuhn.de/go/exammark - mark up and export scanned exam PDFs
// Copyright (C) 2026  The exammark authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the settings of the exammark command.
//
// Settings are read from an optional YAML file and from environment
// variables with the prefix EXAMMARK_, where dots in key names are replaced
// by underscores (for example EXAMMARK_RENDER_MAX_PAGES).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for annotations.
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// Config holds all settings.
type Config struct {
	ExamsDir       string `mapstructure:"exams_dir"`
	AnnotationsDir string `mapstructure:"annotations_dir"`
	Storage        string `mapstructure:"storage"`
	SQLitePath     string `mapstructure:"sqlite_path"`

	Render   RenderConfig   `mapstructure:"render"`
	Export   ExportConfig   `mapstructure:"export"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	Log      LogConfig      `mapstructure:"log"`
}

// RenderConfig configures the page cache.
type RenderConfig struct {
	MaxPages        int     `mapstructure:"max_pages"`
	MaxDocuments    int     `mapstructure:"max_documents"`
	PrefetchWorkers int     `mapstructure:"prefetch_workers"`
	DefaultScale    float64 `mapstructure:"default_scale"`
}

// ExportConfig configures the export of annotated documents.
type ExportConfig struct {
	Concurrency  int    `mapstructure:"concurrency"`
	NameTemplate string `mapstructure:"name_template"`
}

// AutosaveConfig configures the debounced saving of annotations.
type AutosaveConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`

	// Format is "console", "json" or "auto".  With "auto", console output
	// is used if stderr is a terminal.
	Format string `mapstructure:"format"`
}

func setDefaults() {
	viper.SetDefault("exams_dir", "./exams")
	viper.SetDefault("annotations_dir", "./annotations")
	viper.SetDefault("storage", StorageJSON)
	viper.SetDefault("sqlite_path", "./annotations.db")

	viper.SetDefault("render.max_pages", 64)
	viper.SetDefault("render.max_documents", 16)
	viper.SetDefault("render.prefetch_workers", 2)
	viper.SetDefault("render.default_scale", 1.5)

	viper.SetDefault("export.concurrency", 0)
	viper.SetDefault("export.name_template", "{student}_annotated.pdf")

	viper.SetDefault("autosave.delay", 300*time.Millisecond)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
}

// Load reads the configuration.  If file is empty, "exammark.yaml" is
// looked up in the current directory and its absence is not an error.
func Load(file string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("EXAMMARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("exammark")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(file == "" && errors.As(err, &notFound)) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageJSON, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", c.Storage))
	}
	if c.Render.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("render.max_pages: %d < 1", c.Render.MaxPages))
	}
	if c.Render.MaxDocuments < 1 {
		errs = append(errs, fmt.Errorf("render.max_documents: %d < 1", c.Render.MaxDocuments))
	}
	if c.Render.PrefetchWorkers < 0 {
		errs = append(errs, fmt.Errorf("render.prefetch_workers: %d < 0", c.Render.PrefetchWorkers))
	}
	if !(c.Render.DefaultScale > 0) {
		errs = append(errs, fmt.Errorf("render.default_scale: %g is not positive", c.Render.DefaultScale))
	}
	if c.Export.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("export.concurrency: %d < 0", c.Export.Concurrency))
	}
	if !strings.Contains(c.Export.NameTemplate, "{student}") {
		errs = append(errs, fmt.Errorf("export.name_template: %q does not contain {student}", c.Export.NameTemplate))
	}
	if c.Autosave.Delay <= 0 {
		errs = append(errs, fmt.Errorf("autosave.delay: %s is not positive", c.Autosave.Delay))
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
