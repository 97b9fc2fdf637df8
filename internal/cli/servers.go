package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/constants"
	"github.com/rescale/rescale-qr/internal/models"
)

// newServersCmd creates the 'servers' command group.
func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage the server list",
		Long: `Commands for the list of remote archive nodes.

The list lives in a CSV file (name,address,port,ae_title,checked,scheme,path_prefix)
or a YAML file with a top-level "servers" list, chosen by file extension.`,
	}
	cmd.AddCommand(newServersListCmd())
	cmd.AddCommand(newServersAddCmd())
	return cmd
}

func newServersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			servers, err := config.LoadServers(cfg.ServersFile)
			if err != nil {
				return fmt.Errorf("failed to load servers from %s: %w", cfg.ServersFile, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Servers (%s):\n\n", cfg.ServersFile)
			printServers(out, servers, cfg.CallingAETitle)
			return nil
		},
	}
}

func printServers(w io.Writer, servers []models.Server, callingAET string) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers configured. Add one with 'rescale-qr servers add'.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECKED\tNAME\tAE TITLE\tADDRESS\tPORT\tURL ROOT\tCALLING AE")
	for _, s := range servers {
		checked := " "
		if s.Checked {
			checked = "x"
		}
		scheme := s.Scheme
		if scheme == "" {
			scheme = "http"
		}
		prefix := s.PathPrefix
		if prefix == "" {
			prefix = constants.DefaultDICOMwebPathPrefix
		}
		calling := s.CallingAETitle
		if calling == "" {
			calling = callingAET + " (global)"
		}
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%s\t%d\t%s://…%s\t%s\n",
			checked, s.Name, s.CalledAETitle, s.Address, s.Port, scheme, prefix, calling)
	}
	tw.Flush()
}

func newServersAddCmd() *cobra.Command {
	var (
		srv       models.Server
		unchecked bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a server to the server list",
		Long: `Append a server to the server list file, creating the file if needed.

Example:
  rescale-qr servers add --name PACS1 --address 10.0.0.5 --port 8042 --ae-title ARCHIVE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			srv.Checked = !unchecked
			if err := config.ValidateServer(srv); err != nil {
				return err
			}

			servers, err := config.LoadServers(cfg.ServersFile)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load servers from %s: %w", cfg.ServersFile, err)
			}
			for _, s := range servers {
				if s.Name == srv.Name {
					return fmt.Errorf("server %q already exists in %s", srv.Name, cfg.ServersFile)
				}
			}
			servers = append(servers, srv)

			if err := config.SaveServers(cfg.ServersFile, servers); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s to %s\n", srv, cfg.ServersFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&srv.Name, "name", "", "Server name (required)")
	cmd.Flags().StringVar(&srv.Address, "address", "", "Host name or IP address (required)")
	cmd.Flags().IntVar(&srv.Port, "port", 0, "Port (required)")
	cmd.Flags().StringVar(&srv.CalledAETitle, "ae-title", "", "Called AE title (required)")
	cmd.Flags().StringVar(&srv.CallingAETitle, "calling-ae-title", "", "Calling AE title for this server (default: global)")
	cmd.Flags().StringVar(&srv.Scheme, "scheme", "", "http or https (default http)")
	cmd.Flags().StringVar(&srv.PathPrefix, "path-prefix", "", "DICOMweb root path (default "+constants.DefaultDICOMwebPathPrefix+")")
	cmd.Flags().BoolVar(&unchecked, "unchecked", false, "Add the server without checking it for queries")
	return cmd
}
