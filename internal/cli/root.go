// Package cli provides the command-line interface for rescale-qr.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-qr/internal/logging"
	"github.com/rescale/rescale-qr/internal/version"
)

var (
	// Global flags
	cfgFile         string
	serversFile     string
	callingAETitle  string
	storageAETitle  string
	storagePort     int
	destinationKind string
	destinationPath string
	verbose         bool
	debug           bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// Run cancelled by the signal handler, if any
	activeMu     sync.Mutex
	activeCancel func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rescale-qr",
		Short: "Federated DICOM query/retrieve",
		Long: `Rescale QR ` + version.Version + ` - Built: ` + version.BuildTime + `
Queries every selected DICOM archive for matching studies, one server at a
time, and retrieves the selected studies from the server that reported them.

Retrieved instances are written to a local directory, an S3 bucket or an
Azure Blob container.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			logging.SetVerbose(verbose || debug)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serversFile, "servers", "", "Server list file (CSV or YAML, overrides config)")
	rootCmd.PersistentFlags().StringVar(&callingAETitle, "calling-aet", "", "Calling AE title (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storageAETitle, "storage-aet", "", "Move destination AE title (overrides config)")
	rootCmd.PersistentFlags().IntVar(&storagePort, "storage-port", 0, "Local storage port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&destinationKind, "destination", "", "Destination for retrieved studies: local, s3 or azure")
	rootCmd.PersistentFlags().StringVarP(&destinationPath, "output", "o", "", "Local directory for retrieved studies")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// A first signal stops the run before its next server or study; the
	// operation in flight is allowed to finish.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling after the current server or study...\n\n", sig)
				cancelActiveRun()
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newRetrieveCmd())
	rootCmd.AddCommand(newServersCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

func setActiveRun(cancel func()) {
	activeMu.Lock()
	defer activeMu.Unlock()
	activeCancel = cancel
}

func cancelActiveRun() {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeCancel != nil {
		activeCancel()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rescale-qr %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
