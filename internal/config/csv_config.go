package config

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rescale/rescale-qr/internal/constants"
	"github.com/rescale/rescale-qr/internal/models"
)

// Destination types for retrieved studies.
const (
	DestinationLocal = "local"
	DestinationS3    = "s3"
	DestinationAzure = "azure"
)

// Config represents the query/retrieve configuration
type Config struct {
	// Calling side
	CallingAETitle string
	StorageAETitle string // Move destination AE title
	StoragePort    int    // Calling port of the local storage node

	// Server list file (CSV or YAML)
	ServersFile string

	// Destination store for retrieved studies
	Destination     string // "local", "s3", "azure"
	DestinationPath string // Local directory (local destination)

	S3Bucket   string
	S3Region   string
	S3Prefix   string
	S3Endpoint string // Optional S3-compatible endpoint

	// Static S3 credentials, environment only. Empty means the default AWS chain.
	S3AccessKeyID     string
	S3SecretAccessKey string

	AzureAccountURL string // https://{account}.blob.core.windows.net/?{sas}
	AzureContainer  string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy

	// Transport
	RequestTimeout time.Duration
	HTTPRetries    int // Transport-level retries per request (0 = none)

	// Requests per second allowed against a single server (0 = unlimited)
	ServerRequestsPerSecond float64
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		CallingAETitle:  constants.DefaultCallingAETitle,
		StorageAETitle:  constants.DefaultStorageAETitle,
		StoragePort:     constants.DefaultStoragePort,
		ServersFile:     GetDefaultServersPath(),
		Destination:     DestinationLocal,
		DestinationPath: GetDefaultDestinationPath(),
		ProxyMode:       "no-proxy",
		RequestTimeout:  constants.DefaultRequestTimeout,
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "calling_ae_title":
			cfg.CallingAETitle = value
		case "storage_ae_title":
			cfg.StorageAETitle = value
		case "storage_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.StoragePort = v
			}
		case "servers_file":
			cfg.ServersFile = value
		case "destination":
			cfg.Destination = strings.ToLower(value)
		case "destination_path":
			cfg.DestinationPath = value
		case "s3_bucket":
			cfg.S3Bucket = value
		case "s3_region":
			cfg.S3Region = value
		case "s3_prefix":
			cfg.S3Prefix = value
		case "s3_endpoint":
			cfg.S3Endpoint = value
		case "azure_account_url":
			cfg.AzureAccountURL = value
		case "azure_container":
			cfg.AzureContainer = value
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "proxy_password":
			// SECURITY: proxy passwords are never read from disk
			if value != "" {
				log.Printf("[WARN] proxy_password in config file is ignored for security - set RESCALE_QR_PROXY_PASSWORD instead")
			}
		case "no_proxy":
			cfg.NoProxy = value
		case "request_timeout_seconds":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				cfg.RequestTimeout = time.Duration(v) * time.Second
			}
		case "http_retries":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				cfg.HTTPRetries = v
			}
		case "server_requests_per_second":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 {
				cfg.ServerRequestsPerSecond = v
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// proxy_password intentionally omitted for security
	records := [][]string{
		{"calling_ae_title", cfg.CallingAETitle},
		{"storage_ae_title", cfg.StorageAETitle},
		{"storage_port", strconv.Itoa(cfg.StoragePort)},
		{"servers_file", cfg.ServersFile},
		{"destination", cfg.Destination},
		{"destination_path", cfg.DestinationPath},
		{"s3_bucket", cfg.S3Bucket},
		{"s3_region", cfg.S3Region},
		{"s3_prefix", cfg.S3Prefix},
		{"s3_endpoint", cfg.S3Endpoint},
		{"azure_account_url", cfg.AzureAccountURL},
		{"azure_container", cfg.AzureContainer},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"request_timeout_seconds", strconv.Itoa(int(cfg.RequestTimeout / time.Second))},
		{"http_retries", strconv.Itoa(cfg.HTTPRetries)},
		{"server_requests_per_second", strconv.FormatFloat(cfg.ServerRequestsPerSecond, 'f', -1, 64)},
	}

	for _, record := range records {
		// Only write non-empty values to keep file clean
		if record[1] != "" && record[1] != "0" {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	return nil
}

// MergeWithFlags merges config with environment variables and command-line flags.
// Priority: flags > environment > file > defaults
func (c *Config) MergeWithFlags(callingAET, storageAET string, storagePort int, serversFile, destination, destinationPath string) {
	if v := os.Getenv("RESCALE_QR_CALLING_AE_TITLE"); v != "" {
		c.CallingAETitle = v
	}
	if v := os.Getenv("RESCALE_QR_STORAGE_AE_TITLE"); v != "" {
		c.StorageAETitle = v
	}
	if v := os.Getenv("RESCALE_QR_STORAGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.StoragePort = p
		}
	}
	if v := os.Getenv("RESCALE_QR_SERVERS_FILE"); v != "" {
		c.ServersFile = v
	}
	if v := os.Getenv("RESCALE_QR_PROXY_PASSWORD"); v != "" {
		c.ProxyPassword = v
	}
	if v := os.Getenv("RESCALE_QR_S3_ACCESS_KEY_ID"); v != "" {
		c.S3AccessKeyID = v
	}
	if v := os.Getenv("RESCALE_QR_S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3SecretAccessKey = v
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" && c.ProxyMode == "no-proxy" {
		c.ProxyMode = "system"
	}

	if callingAET != "" {
		c.CallingAETitle = callingAET
	}
	if storageAET != "" {
		c.StorageAETitle = storageAET
	}
	if storagePort > 0 {
		c.StoragePort = storagePort
	}
	if serversFile != "" {
		c.ServersFile = serversFile
	}
	if destination != "" {
		c.Destination = strings.ToLower(destination)
	}
	if destinationPath != "" {
		c.DestinationPath = destinationPath
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if len(c.CallingAETitle) > 16 {
		return fmt.Errorf("calling_ae_title %q exceeds 16 characters", c.CallingAETitle)
	}
	if len(c.StorageAETitle) > 16 {
		return fmt.Errorf("storage_ae_title %q exceeds 16 characters", c.StorageAETitle)
	}
	if c.StoragePort < 0 || c.StoragePort > 65535 {
		return fmt.Errorf("storage_port %d out of range", c.StoragePort)
	}

	switch c.Destination {
	case DestinationLocal, "":
	case DestinationS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("destination s3 requires s3_bucket")
		}
	case DestinationAzure:
		if c.AzureAccountURL == "" || c.AzureContainer == "" {
			return fmt.Errorf("destination azure requires azure_account_url and azure_container")
		}
	default:
		return fmt.Errorf("unsupported destination: %s", c.Destination)
	}
	return nil
}

// LocalStorage returns the calling-side parameters used for retrieves.
func (c *Config) LocalStorage() models.LocalStorage {
	return models.LocalStorage{
		CallingAETitle: c.CallingAETitle,
		StorageAETitle: c.StorageAETitle,
		StoragePort:    c.StoragePort,
	}
}
