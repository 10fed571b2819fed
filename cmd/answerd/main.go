// Answerd is a retrieval-augmented response daemon.
//
// It keeps per-session conversation state, retrieves relevant document
// chunks from a vector store, assembles a bounded context, and calls the
// generation collaborator to produce confidence-scored answers over HTTP.
//
// Usage:
//
//	# Start the daemon with defaults
//	answerd serve
//
//	# Start with a config file
//	answerd serve --config /etc/answerd/config.yaml
//
//	# Configure via environment
//	ANSWERD_SERVER_PORT=9090 ANSWERD_VECTORSTORE_PROVIDER=qdrant answerd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "answerd",
	Short: "Retrieval-augmented response daemon",
	Long: `answerd serves conversational answers grounded in uploaded documents.
It selects a response mode per message, retrieves relevant chunks from the
configured vector store, and scores each answer's confidence.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("answerd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
