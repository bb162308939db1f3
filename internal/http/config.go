package http

import (
	"time"

	"github.com/NamanBalaji/mtdl/internal/preflight"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

const (
	defaultThreads             = 4
	fallbackThreads            = 2
	defaultConnectionRetries   = 2
	defaultWorkerRetries       = 1
	defaultRetryDelay          = 1 * time.Second
	defaultUpdateInterval      = 100 * time.Millisecond
	defaultMergeUpdateInterval = 100 * time.Millisecond
	defaultBufferSize          = 8192
)

type ConfigOption func(*Config)

type Config struct {
	Threads             int                   `json:"threads"`
	ConnectionRetries   int                   `json:"connectionRetries"`
	WorkerRetries       int                   `json:"workerRetries"`
	RetryDelay          time.Duration         `json:"retryDelay,omitempty"`
	UpdateInterval      time.Duration         `json:"updateInterval,omitempty"`
	MergeUpdateInterval time.Duration         `json:"mergeUpdateInterval,omitempty"`
	Timeout             time.Duration         `json:"timeout,omitempty"`
	Headers             *httpPkg.HeaderSet    `json:"-"`
	Range               httpPkg.ByteRange     `json:"range"`
	UseRAM              bool                  `json:"useRam"`
	TempDir             string                `json:"tempDir,omitempty"`
	MergeDir            string                `json:"mergeDir,omitempty"`
	KeepArtifacts       bool                  `json:"keepArtifacts"`
	KeepInMergeDir      bool                  `json:"keepInMergeDir"`
	BufferSize          int                   `json:"bufferSize"`
	RateLimit           int64                 `json:"rateLimit,omitempty"`
	UserAgent           string                `json:"userAgent,omitempty"`
	Probe               preflight.SystemProbe `json:"-"`
	Callbacks           Callbacks             `json:"-"`
	Client              *httpPkg.Client       `json:"-"`
	Recorder            Recorder              `json:"-"`
}

func defaultConfig() *Config {
	return &Config{
		Threads:             defaultThreads,
		ConnectionRetries:   defaultConnectionRetries,
		WorkerRetries:       defaultWorkerRetries,
		RetryDelay:          defaultRetryDelay,
		UpdateInterval:      defaultUpdateInterval,
		MergeUpdateInterval: defaultMergeUpdateInterval,
		Timeout:             httpPkg.DefaultTimeout,
		Headers:             httpPkg.NewHeaderSet(),
		Range:               httpPkg.FullRange,
		BufferSize:          defaultBufferSize,
	}
}

func newConfig(opts ...ConfigOption) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Client == nil {
		cfg.Client = httpPkg.NewClient(httpPkg.WithTimeout(cfg.Timeout), httpPkg.WithUserAgent(cfg.UserAgent))
	}

	if cfg.Probe == nil {
		cfg.Probe = preflight.NewSystemProbe()
	}

	return cfg
}

// NewConfig returns the configuration a Downloader built with opts would use.
func NewConfig(opts ...ConfigOption) *Config {
	return newConfig(opts...)
}

func (c *Config) policy() retryPolicy {
	return retryPolicy{
		connection: c.ConnectionRetries,
		worker:     c.WorkerRetries,
		delay:      c.RetryDelay,
	}
}

// WithThreads sets the number of chunks and concurrent workers. Values below
// one fall back to 2.
func WithThreads(threads int) ConfigOption {
	return func(cfg *Config) {
		if threads <= 0 {
			threads = fallbackThreads
		}

		cfg.Threads = threads
	}
}

// WithConnectionRetries sets how many times a failed request is re-issued
// before the worker restarts. Negative means unlimited.
func WithConnectionRetries(n int) ConfigOption {
	return func(cfg *Config) {
		cfg.ConnectionRetries = n
	}
}

// WithWorkerRetries sets how many times a chunk worker restarts after its
// connection retries run out. Negative means unlimited.
func WithWorkerRetries(n int) ConfigOption {
	return func(cfg *Config) {
		cfg.WorkerRetries = n
	}
}

func WithRetryDelay(retryDelay time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.RetryDelay = retryDelay
	}
}

func WithUpdateInterval(d time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.UpdateInterval = d
	}
}

func WithMergeUpdateInterval(d time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.MergeUpdateInterval = d
	}
}

// WithTimeout sets the per-attempt connect and response timeout of the
// default client.
func WithTimeout(d time.Duration) ConfigOption {
	return func(cfg *Config) {
		if d > 0 {
			cfg.Timeout = d
		}
	}
}

// WithHeaders sets the extra request headers. A Range entry is ignored.
func WithHeaders(headers *httpPkg.HeaderSet) ConfigOption {
	return func(cfg *Config) {
		cfg.Headers = headers.WithoutRange()
	}
}

// WithRange restricts the download to a byte range of the resource.
func WithRange(r httpPkg.ByteRange) ConfigOption {
	return func(cfg *Config) {
		cfg.Range = r
	}
}

// WithUseRAM keeps chunk data in memory instead of temp files.
func WithUseRAM(useRAM bool) ConfigOption {
	return func(cfg *Config) {
		cfg.UseRAM = useRAM
	}
}

func WithTempDir(dir string) ConfigOption {
	return func(cfg *Config) {
		cfg.TempDir = dir
	}
}

func WithMergeDir(dir string) ConfigOption {
	return func(cfg *Config) {
		cfg.MergeDir = dir
	}
}

// WithKeepArtifacts leaves chunk and merge temp files behind after a failed
// or canceled run.
func WithKeepArtifacts(keep bool) ConfigOption {
	return func(cfg *Config) {
		cfg.KeepArtifacts = keep
	}
}

// WithKeepInMergeDir places the finished file next to its temp files instead
// of at the requested output directory.
func WithKeepInMergeDir(keep bool) ConfigOption {
	return func(cfg *Config) {
		cfg.KeepInMergeDir = keep
	}
}

func WithBufferSize(size int) ConfigOption {
	return func(cfg *Config) {
		if size <= 0 {
			size = defaultBufferSize
		}

		cfg.BufferSize = size
	}
}

// WithRateLimit caps the combined transfer rate of all workers in bytes per
// second. Zero disables the cap.
func WithRateLimit(bytesPerSecond int64) ConfigOption {
	return func(cfg *Config) {
		cfg.RateLimit = max(bytesPerSecond, 0)
	}
}

func WithUserAgent(ua string) ConfigOption {
	return func(cfg *Config) {
		cfg.UserAgent = ua
	}
}

// WithSystemProbe replaces the disk and memory probe used by preflight.
func WithSystemProbe(probe preflight.SystemProbe) ConfigOption {
	return func(cfg *Config) {
		cfg.Probe = probe
	}
}

func WithCallbacks(cb Callbacks) ConfigOption {
	return func(cfg *Config) {
		cfg.Callbacks = cb
	}
}

// WithClient replaces the HTTP client. WithTimeout and WithUserAgent do not
// apply to a supplied client.
func WithClient(client *httpPkg.Client) ConfigOption {
	return func(cfg *Config) {
		cfg.Client = client
	}
}

// WithRecorder stores a history record of every finished run.
func WithRecorder(r Recorder) ConfigOption {
	return func(cfg *Config) {
		cfg.Recorder = r
	}
}
