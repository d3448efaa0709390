package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		Long: `Serves health, search, validation, ingestion and record endpoints
over HTTP until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				if err := validatePositiveInt(port, "port"); err != nil {
					return err
				}
				a.cfg.Server.Port = port
			}

			svc, release, err := a.services(cmd.Context(), BuildOptions{})
			if err != nil {
				return err
			}
			defer release()

			if svc.Serve == nil {
				return errors.New("server not configured")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", a.cfg.Address())
			return svc.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Skip config loading
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sercha-crawl %s\n", a.version.Version)
			fmt.Fprintf(out, "Commit: %s\n", a.version.Commit)
			fmt.Fprintf(out, "Built:  %s\n", a.version.Date)
		},
	}
}
