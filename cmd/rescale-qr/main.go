// Rescale QR - federated DICOM query/retrieve CLI
package main

import (
	"os"

	"github.com/rescale/rescale-qr/internal/cli"
	"github.com/rescale/rescale-qr/internal/version"
)

// Version information, overridden with -ldflags "-X main.Version=..."
var (
	Version   = "v0.3.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	// cobra has already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
