package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-qr/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rescale-qr configuration",
		Long: `Configuration management commands for rescale-qr.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for rescale-qr.

Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", configPath)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(cmd.InOrStdin(), out, config.DefaultConfig())
			if err != nil {
				return err
			}
			if err := config.SaveConfigCSV(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", configPath).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", configPath)
			if _, err := os.Stat(cfg.ServersFile); os.IsNotExist(err) {
				fmt.Fprintf(out, "Add servers with: rescale-qr servers add --name PACS1 --address <host> --port <port> --ae-title <AE>\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigWizard prompts for the main settings, offering cfg's values as defaults.
func runConfigWizard(in io.Reader, out io.Writer, cfg *config.Config) (*config.Config, error) {
	reader := bufio.NewReader(in)
	ask := func(label, def string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
		line, _ := reader.ReadString('\n')
		if v := strings.TrimSpace(line); v != "" {
			return v
		}
		return def
	}

	fmt.Fprintln(out, "Rescale QR Configuration Setup")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	cfg.CallingAETitle = ask("Calling AE title", cfg.CallingAETitle)
	cfg.StorageAETitle = ask("Storage (move destination) AE title", cfg.StorageAETitle)
	port, err := strconv.Atoi(ask("Storage port", strconv.Itoa(cfg.StoragePort)))
	if err != nil {
		return nil, fmt.Errorf("invalid storage port: %w", err)
	}
	cfg.StoragePort = port
	cfg.ServersFile = ask("Server list file (.csv or .yaml)", cfg.ServersFile)

	fmt.Fprintln(out)
	cfg.Destination = strings.ToLower(ask("Destination (local, s3, azure)", cfg.Destination))
	switch cfg.Destination {
	case config.DestinationLocal:
		cfg.DestinationPath = ask("Local directory", cfg.DestinationPath)
	case config.DestinationS3:
		cfg.S3Bucket = ask("S3 bucket", cfg.S3Bucket)
		cfg.S3Region = ask("S3 region", cfg.S3Region)
		cfg.S3Prefix = ask("S3 key prefix", cfg.S3Prefix)
		cfg.S3Endpoint = ask("S3-compatible endpoint (blank for AWS)", cfg.S3Endpoint)
	case config.DestinationAzure:
		cfg.AzureAccountURL = ask("Azure account URL (with SAS)", cfg.AzureAccountURL)
		cfg.AzureContainer = ask("Azure container", cfg.AzureContainer)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
	cfg.ProxyMode = ask("Proxy mode", cfg.ProxyMode)
	if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
		cfg.ProxyHost = ask("Proxy host", cfg.ProxyHost)
		if p, err := strconv.Atoi(ask("Proxy port", "8080")); err == nil && p > 0 {
			cfg.ProxyPort = p
		}
		cfg.ProxyUser = ask("Proxy user (blank for none)", cfg.ProxyUser)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the merged configuration.

Priority: flags > environment (RESCALE_QR_*) > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintf(w, "Calling AE title:   %s\n", cfg.CallingAETitle)
	fmt.Fprintf(w, "Storage AE title:   %s\n", cfg.StorageAETitle)
	fmt.Fprintf(w, "Storage port:       %d\n", cfg.StoragePort)
	fmt.Fprintf(w, "Servers file:       %s\n", cfg.ServersFile)
	fmt.Fprintf(w, "Destination:        %s\n", cfg.Destination)
	switch cfg.Destination {
	case config.DestinationS3:
		fmt.Fprintf(w, "  Bucket:           %s\n", cfg.S3Bucket)
		fmt.Fprintf(w, "  Region:           %s\n", cfg.S3Region)
		fmt.Fprintf(w, "  Prefix:           %s\n", cfg.S3Prefix)
		if cfg.S3Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint:         %s\n", cfg.S3Endpoint)
		}
		fmt.Fprintf(w, "  Static keys:      %t\n", cfg.S3AccessKeyID != "")
	case config.DestinationAzure:
		fmt.Fprintf(w, "  Account URL:      %s\n", redactQuery(cfg.AzureAccountURL))
		fmt.Fprintf(w, "  Container:        %s\n", cfg.AzureContainer)
	default:
		fmt.Fprintf(w, "  Directory:        %s\n", cfg.DestinationPath)
	}
	fmt.Fprintf(w, "Proxy mode:         %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy:            %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}
	fmt.Fprintf(w, "Request timeout:    %s\n", cfg.RequestTimeout)
	fmt.Fprintf(w, "HTTP retries:       %d\n", cfg.HTTPRetries)
	if cfg.ServerRequestsPerSecond > 0 {
		fmt.Fprintf(w, "Requests/s/server:  %g\n", cfg.ServerRequestsPerSecond)
	}
}

// redactQuery hides a SAS token or other query string.
func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?<redacted>"
	}
	return u
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
		},
	}
}
