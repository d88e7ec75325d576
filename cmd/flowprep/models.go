package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/flowprep/pkg/preprocess"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model store",
	}
	cmd.AddCommand(newModelsListCmd(a), newModelsShowCmd(a), newModelsDeleteCmd(a))
	return cmd
}

func newModelsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tFITTED\tROWS\tCOLUMNS\tCREATED\tID")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%d\t%d\t%s\t%s\n",
					e.Name, e.Version, e.Fitted, e.Rows, e.Columns, e.CreatedAt.Format(time.RFC3339), e.ID)
			}
			return tw.Flush()
		},
	}
}

func newModelsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME [VERSION]",
		Short: "Print the descriptor of a stored model",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version uint64
			if len(args) == 2 {
				v, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return errors.Wrapf(err, "version %q", args[1])
				}
				version = v
			}

			d, err := a.loadDescriptor("", args[0], version)
			if err != nil {
				return err
			}
			return preprocess.WriteDescriptor(cmd.OutOrStdout(), d)
		},
	}
}

func newModelsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME VERSION",
		Short: "Remove a stored model version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "version %q", args[1])
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Delete(args[0], version); err != nil {
				return err
			}
			a.logger.Info().Str("name", args[0]).Uint64("version", version).Msg("model deleted")
			return nil
		},
	}
}
