package cmd

import (
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/mtdl/internal/config"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/repository"
	"github.com/NamanBalaji/mtdl/internal/view"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		prune int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.GetConfig()
			if err != nil {
				return err
			}

			repo, err := repository.NewBboltRepository(conf.History.Path)
			if err != nil {
				return err
			}
			defer repo.Close()

			if cmd.Flags().Changed("prune") {
				removed, err := repo.Prune(prune)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s)\n", removed)

				return nil
			}

			records, err := repo.FindAll()
			if err != nil {
				return err
			}

			printHistory(cmd.OutOrStdout(), records, limit)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show (0 = all)")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest N records")

	return cmd
}

func printHistory(w io.Writer, records []*repository.Record, limit int) {
	if len(records) == 0 {
		fmt.Fprintln(w, view.LabelStyle.Render("no downloads recorded"))
		return
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	for _, r := range records {
		outcome := view.StateFinished.Render("✔")
		if !r.Succeeded() {
			outcome = view.StateErrored.Render(fmt.Sprintf("✖ %d %s", r.Code, dlErrors.CodeText(r.Code)))
		}

		target := r.FinalPath
		if target == "" {
			target = r.OutputPath
		}

		fmt.Fprintf(w, "%s %s %s %s\n  %s -> %s\n",
			view.LabelStyle.Render(r.FinishedAt.Format("2006-01-02 15:04:05")),
			outcome,
			view.ValueStyle.Render(units.BytesSize(float64(r.BytesTransferred))),
			view.LabelStyle.Render(units.HumanDuration(r.Duration())),
			r.URL,
			target,
		)
	}
}
