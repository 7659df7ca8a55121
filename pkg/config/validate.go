package config

import "time"

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// LinkConcurrency
	if c.LinkConcurrency <= 0 {
		warnings = append(warnings, "link_concurrency should be > 0, defaulting to 4")
		c.LinkConcurrency = 4
	}

	// ImageConcurrency
	if c.ImageConcurrency <= 0 {
		warnings = append(warnings, "image_concurrency should be > 0, defaulting to 10")
		c.ImageConcurrency = 10
	}

	// SaveRoot
	if c.SaveRoot == "" {
		warnings = append(warnings, "save_root is empty, defaulting to './telegraph_images'")
		c.SaveRoot = "telegraph_images"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (tg-scraper)"
	}

	// RunTimeout
	if c.RunTimeout < 0 {
		warnings = append(warnings, "run_timeout cannot be negative, disabling timeout")
		c.RunTimeout = 0
	}

	// DBGCInterval
	if c.DBGCInterval <= 0 {
		c.DBGCInterval = 5 * time.Minute
	}

	// HistoryPageSize
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = 100
	}

	// CredentialsFile
	if c.CredentialsFile == "" {
		c.CredentialsFile = "credentials.json"
	}

	// Report filename
	if c.EnableRunReport && c.ReportFilename == "" {
		c.ReportFilename = "run_report.yaml"
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil // AppConfig validation never fails fatally
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
