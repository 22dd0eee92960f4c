package config

import "time"

// DefaultBlockedExtensions lists path suffixes (without the dot) that are never fetched:
// media, archives, binaries and office documents.
var DefaultBlockedExtensions = []string{
	"css", "js", "bmp", "gif", "jpg", "jpeg", "ico", "png", "tif", "tiff", "mid", "mp2", "mp3", "mp4",
	"wav", "avi", "mov", "mpeg", "ram", "m4v", "mkv", "ogg", "ogv", "pdf",
	"ps", "eps", "tex", "ppt", "pptx", "doc", "docx", "xls", "xlsx", "names",
	"data", "dat", "exe", "bz2", "tar", "msi", "bin", "7z", "psd", "dmg", "iso",
	"epub", "dll", "cnf", "tgz", "sha1", "thmx", "mso", "arff", "rtf", "jar", "csv",
	"rm", "smil", "wmv", "swf", "wma", "zip", "rar", "gz",
}

// DefaultAllowedDomains is the crawl scope used when allowed_domains is empty.
var DefaultAllowedDomains = []string{"ics.uci.edu", "cs.uci.edu", "informatics.uci.edu", "stat.uci.edu"}

// AppConfig holds the global application configuration
type AppConfig struct {
	SeedURLs               []string         `yaml:"seed_urls"`
	AllowedDomains         []string         `yaml:"allowed_domains,omitempty"`
	RootDomain             string           `yaml:"root_domain,omitempty"` // Domain whose subdomains are reported
	BlockedExtensions      []string         `yaml:"blocked_extensions,omitempty"`
	DisallowedPathPatterns []string         `yaml:"disallowed_path_patterns,omitempty"` // Regex patterns for paths to exclude
	NearDuplicateThreshold int              `yaml:"near_duplicate_threshold,omitempty"`
	DeadPageBytes          int              `yaml:"dead_page_bytes,omitempty"`
	MaxBodyBytes           int64            `yaml:"max_body_bytes,omitempty"`
	TimeDelay              time.Duration    `yaml:"time_delay,omitempty"` // Politeness delay applied by each worker after a page
	NumWorkers             int              `yaml:"num_workers"`
	MaxRequests            int              `yaml:"max_requests"` // Global cap on in-flight fetches
	UserAgent              string           `yaml:"user_agent,omitempty"`
	CacheServer            string           `yaml:"cache_server,omitempty"` // Optional caching proxy URL
	RobotsTimeout          time.Duration    `yaml:"robots_timeout,omitempty"`
	AllowOnRobotsFailure   *bool            `yaml:"allow_on_robots_failure,omitempty"` // nil means the permissive default
	MaxRetries             int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay      time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay          time.Duration    `yaml:"max_retry_delay,omitempty"`
	StateDir               string           `yaml:"state_dir"`
	ReportPath             string           `yaml:"report_path,omitempty"`
	SummaryYAMLPath        string           `yaml:"summary_yaml_path,omitempty"`
	ExpectedPages          uint             `yaml:"expected_pages,omitempty"` // Sizing hint for the visited-URL filter
	UseSitemaps            bool             `yaml:"use_sitemaps,omitempty"`   // Seed the frontier from robots.txt Sitemap directives
	MaxSitemaps            int              `yaml:"max_sitemaps,omitempty"`   // Cap on sitemap documents fetched per run
	HTTPClientSettings     HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Thresholds are the page admission limits consumed by the processing pipeline.
type Thresholds struct {
	NearDuplicateBits int
	DeadPageBytes     int
	MaxBodyBytes      int64
}

// Thresholds returns the admission limits of the config.
func (c *AppConfig) Thresholds() Thresholds {
	return Thresholds{
		NearDuplicateBits: c.NearDuplicateThreshold,
		DeadPageBytes:     c.DeadPageBytes,
		MaxBodyBytes:      c.MaxBodyBytes,
	}
}

// GetEffectiveAllowOnRobotsFailure reports whether a domain whose robots.txt could not be
// fetched or parsed is treated as fully allowed.
func (c *AppConfig) GetEffectiveAllowOnRobotsFailure() bool {
	if c.AllowOnRobotsFailure != nil {
		return *c.AllowOnRobotsFailure
	}
	return true
}
