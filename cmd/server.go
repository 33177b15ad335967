package cmd

import (
	"fmt"
	"os"

	"github.com/materialdesk/apiserver/config"
	"github.com/materialdesk/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd starts the HTTP API server.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the material catalog API server",
	Long: `Starts the material catalog API server. Usage:

	apiserver server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Run(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
