package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	dlhttp "github.com/NamanBalaji/mtdl/internal/http"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

const configFileName = "mtdl"

// Config holds the configuration options for the application.
type Config struct {
	Download *DownloadConfig `yaml:"download,omitempty"`
	History  *HistoryConfig  `yaml:"history,omitempty"`
}

// DownloadConfig holds the defaults of every download.
type DownloadConfig struct {
	Dir                 string            `yaml:"dir,omitempty"`
	TempDir             string            `yaml:"tempDir,omitempty"`
	MergeDir            string            `yaml:"mergeDir,omitempty"`
	Threads             int               `yaml:"threads,omitempty"`
	ConnectionRetries   *int              `yaml:"connectionRetries,omitempty"`
	WorkerRetries       *int              `yaml:"workerRetries,omitempty"`
	RetryDelay          time.Duration     `yaml:"retryDelay,omitempty"`
	UpdateInterval      time.Duration     `yaml:"updateInterval,omitempty"`
	MergeUpdateInterval time.Duration     `yaml:"mergeUpdateInterval,omitempty"`
	Timeout             time.Duration     `yaml:"timeout,omitempty"`
	BufferSize          string            `yaml:"bufferSize,omitempty"`
	RateLimit           string            `yaml:"rateLimit,omitempty"`
	UseRAM              bool              `yaml:"useRam,omitempty"`
	KeepArtifacts       bool              `yaml:"keepArtifacts,omitempty"`
	KeepInMergeDir      bool              `yaml:"keepInMergeDir,omitempty"`
	UserAgent           string            `yaml:"userAgent,omitempty"`
	Headers             map[string]string `yaml:"headers,omitempty"`
}

// HistoryConfig controls the finished-run log.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// FilePath is where GetConfig looks for the configuration file.
func FilePath() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	dl := zeroOr(cfg.Download, defaults.Download)
	hist := zeroOr(cfg.History, defaults.History)

	return &Config{
		Download: &DownloadConfig{
			Dir:                 zeroOr(dl.Dir, defaults.Download.Dir),
			TempDir:             dl.TempDir,
			MergeDir:            dl.MergeDir,
			Threads:             zeroOr(dl.Threads, defaults.Download.Threads),
			ConnectionRetries:   zeroOr(dl.ConnectionRetries, defaults.Download.ConnectionRetries),
			WorkerRetries:       zeroOr(dl.WorkerRetries, defaults.Download.WorkerRetries),
			RetryDelay:          zeroOr(dl.RetryDelay, defaults.Download.RetryDelay),
			UpdateInterval:      zeroOr(dl.UpdateInterval, defaults.Download.UpdateInterval),
			MergeUpdateInterval: zeroOr(dl.MergeUpdateInterval, defaults.Download.MergeUpdateInterval),
			Timeout:             zeroOr(dl.Timeout, defaults.Download.Timeout),
			BufferSize:          zeroOr(dl.BufferSize, defaults.Download.BufferSize),
			RateLimit:           dl.RateLimit,
			UseRAM:              dl.UseRAM,
			KeepArtifacts:       dl.KeepArtifacts,
			KeepInMergeDir:      dl.KeepInMergeDir,
			UserAgent:           zeroOr(dl.UserAgent, defaults.Download.UserAgent),
			Headers:             zeroOr(dl.Headers, defaults.Download.Headers),
		},
		History: &HistoryConfig{
			Enabled: zeroOr(hist.Enabled, defaults.History.Enabled),
			Path:    zeroOr(hist.Path, defaults.History.Path),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Download: &DownloadConfig{
			Dir:                 downloadDir,
			Threads:             threads,
			ConnectionRetries:   intPtr(connectionRetries),
			WorkerRetries:       intPtr(workerRetries),
			RetryDelay:          retryDelay,
			UpdateInterval:      updateInterval,
			MergeUpdateInterval: mergeUpdateInterval,
			Timeout:             timeout,
			BufferSize:          bufferSize,
			UserAgent:           httpPkg.DefaultUserAgent,
			Headers:             map[string]string{"Accept": "*/*"},
		},
		History: &HistoryConfig{
			Enabled: boolPtr(historyEnabled),
			Path:    historyPath(),
		},
	}
}

// HistoryEnabled reports whether finished runs should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.History != nil && c.History.Enabled != nil && *c.History.Enabled
}

// HttpOptions converts the download section into engine options. Sizes are
// human strings such as "8KiB" or "2MiB".
func (d *DownloadConfig) HttpOptions() ([]dlhttp.ConfigOption, error) {
	opts := []dlhttp.ConfigOption{
		dlhttp.WithThreads(d.Threads),
		dlhttp.WithRetryDelay(d.RetryDelay),
		dlhttp.WithUpdateInterval(d.UpdateInterval),
		dlhttp.WithMergeUpdateInterval(d.MergeUpdateInterval),
		dlhttp.WithTimeout(d.Timeout),
		dlhttp.WithUseRAM(d.UseRAM),
		dlhttp.WithTempDir(d.TempDir),
		dlhttp.WithMergeDir(d.MergeDir),
		dlhttp.WithKeepArtifacts(d.KeepArtifacts),
		dlhttp.WithKeepInMergeDir(d.KeepInMergeDir),
		dlhttp.WithUserAgent(d.UserAgent),
	}

	if d.ConnectionRetries != nil {
		opts = append(opts, dlhttp.WithConnectionRetries(*d.ConnectionRetries))
	}

	if d.WorkerRetries != nil {
		opts = append(opts, dlhttp.WithWorkerRetries(*d.WorkerRetries))
	}

	if d.BufferSize != "" {
		size, err := units.RAMInBytes(d.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("invalid bufferSize %q: %w", d.BufferSize, err)
		}

		opts = append(opts, dlhttp.WithBufferSize(int(size)))
	}

	if d.RateLimit != "" {
		limit, err := units.RAMInBytes(d.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rateLimit %q: %w", d.RateLimit, err)
		}

		opts = append(opts, dlhttp.WithRateLimit(limit))
	}

	if len(d.Headers) > 0 {
		opts = append(opts, dlhttp.WithHeaders(httpPkg.HeaderSetFromMap(d.Headers)))
	}

	return opts, nil
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(&v).Elem().IsZero() {
		return def
	}

	return v
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
