package config

import (
	"path/filepath"
	"time"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	SaveRoot         string        `yaml:"save_root"`                   // Base directory for fetched pages and media
	StateDir         string        `yaml:"state_dir"`                   // Directory holding the ledger DB and session state
	UserAgent        string        `yaml:"user_agent,omitempty"`        // User-Agent header for page/image fetches
	LinkConcurrency  int64         `yaml:"link_concurrency,omitempty"`  // Simultaneous page/post fetches
	ImageConcurrency int64         `yaml:"image_concurrency,omitempty"` // Simultaneous image downloads, shared across pages
	FullCrawl        bool          `yaml:"full_crawl,omitempty"`        // Walk entire channel history instead of latest qualifying message
	SaveMarkdown     bool          `yaml:"save_markdown,omitempty"`     // Write a page.md conversion next to page.html
	RunTimeout       time.Duration `yaml:"run_timeout,omitempty"`       // Overall bound for a run (0 = no timeout)
	DBGCInterval     time.Duration `yaml:"db_gc_interval,omitempty"`    // Badger value-log GC interval
	HistoryPageSize  int           `yaml:"history_page_size,omitempty"` // Messages per history request during channel walks

	CredentialsFile string `yaml:"credentials_file,omitempty"` // JSON file with api_id/api_hash/phone
	SessionFile     string `yaml:"session_file,omitempty"`     // Telegram session path (default: <state_dir>/tg.session)

	EnableRunReport bool   `yaml:"enable_run_report"`         // Write a YAML run summary into the save root
	ReportFilename  string `yaml:"report_filename,omitempty"` // Filename for the run summary

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns an AppConfig populated with stock settings. Loading a config
// file unmarshals over these, so absent keys keep their defaults.
func Default() AppConfig {
	return AppConfig{
		SaveRoot:         "telegraph_images",
		StateDir:         "./scraper_state",
		UserAgent:        "Mozilla/5.0 (tg-scraper)",
		LinkConcurrency:  4,
		ImageConcurrency: 10,
		DBGCInterval:     5 * time.Minute,
		HistoryPageSize:  100,
		CredentialsFile:  "credentials.json",
		EnableRunReport:  true,
	}
}

// LedgerDir returns the Badger directory for the processed-links ledger.
func (c *AppConfig) LedgerDir() string {
	return filepath.Join(c.StateDir, "processed_links")
}

// EffectiveSessionFile returns the configured session path, or the default
// location under the state directory when unset.
func (c *AppConfig) EffectiveSessionFile() string {
	if c.SessionFile != "" {
		return c.SessionFile
	}
	return filepath.Join(c.StateDir, "tg.session")
}
