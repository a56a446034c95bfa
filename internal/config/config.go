// Package config loads the crawler configuration: defaults, then config.json5 (and its
// .local override), then ESAJ_* environment variables. Command line flags are applied
// on top by the cli.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/lib/configutil"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "ESAJ_"

type PortalConfig struct {
	BaseUrl string `json:"base_url" env:"BASE_URL"`
	// PageParam is the query parameter selecting a result page.
	PageParam string `json:"page_param" env:"PAGE_PARAM"`
}

type SweepConfig struct {
	Start      int      `json:"start" env:"START"`
	End        int      `json:"end" env:"END"`
	Prefix     string   `json:"prefix" env:"PREFIX"`
	Workers    int      `json:"workers" env:"WORKERS"`
	BatchSize  int      `json:"batch_size" env:"BATCH_SIZE"`
	BatchDelay Duration `json:"batch_delay" env:"BATCH_DELAY"`
	// Documents also downloads the documents of every case found.
	Documents bool `json:"documents" env:"DOCUMENTS"`
	// Resume starts right after the last batch file already written.
	Resume bool `json:"resume" env:"RESUME"`
}

type TimingConfig struct {
	Settle     Duration `json:"settle" env:"SETTLE"`
	PageSettle Duration `json:"page_settle" env:"PAGE_SETTLE"`
	ViewerWait Duration `json:"viewer_wait" env:"VIEWER_WAIT"`
}

type RenderConfig struct {
	// Engine is "rod" (headless chrome) or "static" (plain http, no scripts).
	Engine            string   `json:"engine" env:"ENGINE"`
	Bin               string   `json:"bin" env:"BIN"`
	Headless          bool     `json:"headless" env:"HEADLESS"`
	NavigationTimeout Duration `json:"navigation_timeout" env:"NAVIGATION_TIMEOUT"`
	UserAgent         string   `json:"user_agent" env:"USER_AGENT"`
}

type DownloadConfig struct {
	Timeout           Duration `json:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64  `json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// DumpDir keeps a text copy of every document request and response, for debugging
	// rejected payloads.
	DumpDir           string   `json:"dump_dir" env:"DUMP_DIR"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" env:"ENDPOINT"`
	Region    string `json:"region" env:"REGION"`
	AccessKey string `json:"access_key" env:"ACCESS_KEY"`
	SecretKey string `json:"secret_key" env:"SECRET_KEY"`
	Bucket    string `json:"bucket" env:"BUCKET"`
	Prefix    string `json:"prefix" env:"PREFIX"`
}

type OutputConfig struct {
	// BatchDir holds one processos_<start>_<end>.json file per batch.
	BatchDir string `json:"batch_dir" env:"BATCH_DIR"`
	// Documents is "fs", "sql" or "s3".
	Documents    string   `json:"documents" env:"DOCUMENTS"`
	DocumentsDir string   `json:"documents_dir" env:"DOCUMENTS_DIR"`
	// Database is a directory for local sqlite files or a libsql:// url, empty disables
	// the case table.
	Database string   `json:"database" env:"DATABASE"`
	S3       S3Config `json:"s3" envPrefix:"S3_"`
}

type Config struct {
	Portal    PortalConfig     `json:"portal" envPrefix:"PORTAL_"`
	Sweep     SweepConfig      `json:"sweep" envPrefix:"SWEEP_"`
	Timing    TimingConfig     `json:"timing" envPrefix:"TIMING_"`
	Render    RenderConfig     `json:"render" envPrefix:"RENDER_"`
	Download  DownloadConfig   `json:"download" envPrefix:"DOWNLOAD_"`
	Output    OutputConfig     `json:"output" envPrefix:"OUTPUT_"`
	Telemetry telemetry.Config `json:"telemetry" envPrefix:"TELEMETRY_"`
}

func Default() Config {
	return Config{
		Portal: PortalConfig{
			BaseUrl:   "https://esaj.tjsp.jus.br",
			PageParam: "paginaConsulta",
		},
		Sweep: SweepConfig{
			Start:      1,
			End:        1,
			Prefix:     "SP",
			Workers:    4,
			BatchSize:  100,
			BatchDelay: Duration(30 * time.Second),
		},
		Timing: TimingConfig{
			Settle:     Duration(860 * time.Millisecond),
			PageSettle: Duration(200 * time.Millisecond),
			ViewerWait: Duration(10 * time.Second),
		},
		Render: RenderConfig{
			Engine:            "rod",
			Headless:          true,
			NavigationTimeout: Duration(45 * time.Second),
		},
		Download: DownloadConfig{
			Timeout:           Duration(15 * time.Second),
			RequestsPerSecond: 2,
		},
		Output: OutputConfig{
			BatchDir:     "processos",
			Documents:    "fs",
			DocumentsDir: "process_documents",
		},
	}
}

// Load reads the configuration at path, a missing file leaves the defaults in place.
//
// Fields a config file leaves at their zero value keep their default, so a file can't
// turn a boolean default off. Use the environment or flags for that.
func Load(path string) (Config, error) {
	cfg := Default()

	fromFile, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err == nil {
		err = mergo.Merge(&cfg, fromFile, mergo.WithOverride)
		if err != nil {
			return cfg, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	err = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Sweep.Workers < 1 {
		errs = append(errs, fmt.Errorf("sweep.workers must be at least 1"))
	}
	if c.Sweep.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("sweep.batch_size must be at least 1"))
	}
	if c.Sweep.Start < 0 {
		errs = append(errs, fmt.Errorf("sweep.start must not be negative"))
	}
	switch c.Render.Engine {
	case "rod", "static":
	default:
		errs = append(errs, fmt.Errorf("render.engine must be rod or static, got %q", c.Render.Engine))
	}
	switch c.Output.Documents {
	case "fs", "sql":
	case "s3":
		if c.Output.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("output.s3.bucket is required for s3 documents"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.documents must be fs, sql or s3, got %q", c.Output.Documents))
	}
	if c.Output.Documents == "sql" && c.Output.Database == "" {
		errs = append(errs, fmt.Errorf("output.database is required for sql documents"))
	}
	return errors.Join(errs...)
}
