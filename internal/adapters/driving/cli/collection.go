package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the collection schema and point count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd.Context(), BuildOptions{})
			if err != nil {
				return err
			}
			defer release()

			info, err := svc.Collection.Info(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collection:  %s\n", info.Name)
			fmt.Fprintf(out, "Vector size: %d\n", info.VectorSize)
			fmt.Fprintf(out, "Distance:    %s\n", info.Distance)
			fmt.Fprintf(out, "Points:      %d\n", info.PointCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete one stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd.Context(), BuildOptions{})
			if err != nil {
				return err
			}
			defer release()

			if !svc.Collection.Delete(cmd.Context(), args[0]) {
				return fmt.Errorf("store: failed to delete record %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
