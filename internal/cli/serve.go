package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autofix/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only run-status API",
	Long: `Serve recorded run history as JSON on localhost:

  GET /api/health
  GET /api/runs?limit=N
  GET /api/runs/latest
  GET /api/runs/{id}
  GET /api/runs/{id}/events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		log, err := newLogger(false)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		fmt.Fprintf(cmd.ErrOrStderr(), "Serving run status on http://localhost:%d\n", port)
		return web.NewServer(database, port, log).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 8642, "port to listen on")
}
