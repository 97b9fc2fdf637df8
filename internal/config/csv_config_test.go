package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigCSV(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "valid config",
			content: "key,value\n" +
				"calling_ae_title,WORKSTATION\n" +
				"storage_ae_title,STORE1\n" +
				"storage_port,4006\n" +
				"request_timeout_seconds,30\n" +
				"http_retries,2\n" +
				"server_requests_per_second,2.5\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.CallingAETitle != "WORKSTATION" {
					t.Errorf("CallingAETitle = %q, want %q", cfg.CallingAETitle, "WORKSTATION")
				}
				if cfg.StorageAETitle != "STORE1" {
					t.Errorf("StorageAETitle = %q, want %q", cfg.StorageAETitle, "STORE1")
				}
				if cfg.StoragePort != 4006 {
					t.Errorf("StoragePort = %d, want 4006", cfg.StoragePort)
				}
				if cfg.RequestTimeout != 30*time.Second {
					t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
				}
				if cfg.HTTPRetries != 2 {
					t.Errorf("HTTPRetries = %d, want 2", cfg.HTTPRetries)
				}
				if cfg.ServerRequestsPerSecond != 2.5 {
					t.Errorf("ServerRequestsPerSecond = %v, want 2.5", cfg.ServerRequestsPerSecond)
				}
			},
		},
		{
			name:    "minimal config keeps defaults",
			content: "calling_ae_title,MINI\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.CallingAETitle != "MINI" {
					t.Errorf("CallingAETitle = %q, want %q", cfg.CallingAETitle, "MINI")
				}
				if cfg.Destination != DestinationLocal {
					t.Errorf("Destination = %q, want %q", cfg.Destination, DestinationLocal)
				}
				if cfg.StoragePort == 0 {
					t.Error("StoragePort should have default value")
				}
			},
		},
		{
			name:    "proxy password ignored",
			content: "proxy_mode,basic\nproxy_password,secret\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.ProxyPassword != "" {
					t.Error("ProxyPassword should not be read from file")
				}
				if cfg.ProxyMode != "basic" {
					t.Errorf("ProxyMode = %q, want basic", cfg.ProxyMode)
				}
			},
		},
		{
			name:    "s3 without bucket",
			content: "destination,s3\n",
			wantErr: true,
		},
		{
			name:    "azure with container",
			content: "destination,azure\nazure_account_url,https://acct.blob.core.windows.net/?sv=x\nazure_container,studies\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.AzureContainer != "studies" {
					t.Errorf("AzureContainer = %q, want studies", cfg.AzureContainer)
				}
			},
		},
		{
			name:    "AE title too long",
			content: "calling_ae_title,THIS_TITLE_IS_TOO_LONG\n",
			wantErr: true,
		},
		{
			name:    "unknown destination",
			content: "destination,ftp\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.csv", tt.content)
			cfg, err := LoadConfigCSV(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfigCSV() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadConfigCSV_MissingFile(t *testing.T) {
	cfg, err := LoadConfigCSV(filepath.Join(t.TempDir(), "nonexistent.csv"))
	if err != nil {
		t.Fatalf("LoadConfigCSV() error = %v", err)
	}
	if cfg.CallingAETitle == "" {
		t.Error("Should have default CallingAETitle")
	}
}

func TestSaveConfigCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.csv")

	cfg := DefaultConfig()
	cfg.CallingAETitle = "SAVED"
	cfg.StoragePort = 5104
	cfg.ProxyPassword = "secret"
	cfg.HTTPRetries = 0

	if err := SaveConfigCSV(cfg, path); err != nil {
		t.Fatalf("SaveConfigCSV() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("saved config must not contain the proxy password")
	}
	if strings.Contains(string(data), "http_retries") {
		t.Error("zero values should be omitted")
	}

	loaded, err := LoadConfigCSV(path)
	if err != nil {
		t.Fatalf("LoadConfigCSV() error = %v", err)
	}
	if loaded.CallingAETitle != "SAVED" {
		t.Errorf("CallingAETitle = %q, want SAVED", loaded.CallingAETitle)
	}
	if loaded.StoragePort != 5104 {
		t.Errorf("StoragePort = %d, want 5104", loaded.StoragePort)
	}
}

func TestMergeWithFlags(t *testing.T) {
	t.Setenv("RESCALE_QR_CALLING_AE_TITLE", "FROMENV")
	t.Setenv("RESCALE_QR_STORAGE_PORT", "7000")
	t.Setenv("RESCALE_QR_PROXY_PASSWORD", "envpass")
	t.Setenv("HTTPS_PROXY", "")

	cfg := DefaultConfig()
	cfg.MergeWithFlags("", "FLAGSTORE", 0, "", "S3", "")

	if cfg.CallingAETitle != "FROMENV" {
		t.Errorf("CallingAETitle = %q, want FROMENV", cfg.CallingAETitle)
	}
	if cfg.StorageAETitle != "FLAGSTORE" {
		t.Errorf("StorageAETitle = %q, want FLAGSTORE", cfg.StorageAETitle)
	}
	if cfg.StoragePort != 7000 {
		t.Errorf("StoragePort = %d, want 7000", cfg.StoragePort)
	}
	if cfg.ProxyPassword != "envpass" {
		t.Errorf("ProxyPassword = %q, want envpass", cfg.ProxyPassword)
	}
	if cfg.Destination != DestinationS3 {
		t.Errorf("Destination = %q, want s3", cfg.Destination)
	}

	// Flags beat environment
	cfg.MergeWithFlags("FROMFLAG", "", 0, "", "", "")
	if cfg.CallingAETitle != "FROMFLAG" {
		t.Errorf("CallingAETitle = %q, want FROMFLAG", cfg.CallingAETitle)
	}
}

func TestMergeWithFlags_SystemProxyFromEnv(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "http://proxy.example.com:3128")

	cfg := DefaultConfig()
	cfg.MergeWithFlags("", "", 0, "", "", "")

	if cfg.ProxyMode != "system" {
		t.Errorf("ProxyMode = %q, want system", cfg.ProxyMode)
	}
}

func TestLocalStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallingAETitle = "CALLER"
	cfg.StorageAETitle = "STORE"
	cfg.StoragePort = 11113

	ls := cfg.LocalStorage()
	if ls.CallingAETitle != "CALLER" || ls.StorageAETitle != "STORE" || ls.StoragePort != 11113 {
		t.Errorf("LocalStorage() = %+v", ls)
	}
}
