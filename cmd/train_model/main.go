package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"cardioml/app"
	"cardioml/dataset"
	"cardioml/report"
	"cardioml/trainer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, dataset.ErrLoad) {
			fmt.Fprintf(stderr, "train_model: %v: %v\n", dataset.ErrLoad, err)
		} else {
			fmt.Fprintf(stderr, "train_model: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		force      bool
		table      bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "train_model",
		Short: "Train and compare the heart disease classifiers",
		Long: `Train MLP, Random Forest, SVM, Decision Tree and Naive Bayes models on the
configured dataset, save them with the fitted scaler and print the comparison.

Examples:
  train_model                  # train only when no comparison exists
  train_model --force --table  # retrain and show a comparison table
  train_model --watch          # retrain whenever the dataset changes
  train_model history --predictions
  train_model export heart.csv # re-encode the dataset as UTF-8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var comparison *trainer.Comparison
			if force {
				comparison, err = env.Trainer.Train(ctx)
			} else {
				comparison, _, err = env.Trainer.TrainIfNeeded(ctx)
			}
			if err != nil {
				return err
			}
			if err := printComparison(stdout, stderr, comparison, table); err != nil {
				return err
			}

			if !watch {
				return nil
			}
			var printErr error
			err = env.Trainer.Watch(ctx, func(c *trainer.Comparison) {
				if err := printComparison(stdout, stderr, c, table); err != nil && printErr == nil {
					printErr = err
				}
			})
			if err != nil {
				return err
			}
			return printErr
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(context.Background())

	cmd.PersistentFlags().StringVar(&configPath, "config", app.DefaultConfigPath, "YAML config file")
	cmd.Flags().BoolVar(&force, "force", false, "retrain even when models exist")
	cmd.Flags().BoolVar(&table, "table", false, "render a comparison table on stderr")
	cmd.Flags().BoolVar(&watch, "watch", false, "retrain whenever the dataset file changes")

	cmd.AddCommand(newHistoryCmd(&configPath, stdout))
	cmd.AddCommand(newExportCmd(&configPath, stdout))
	return cmd
}

func newHistoryCmd(configPath *string, stdout io.Writer) *cobra.Command {
	var (
		limit       int
		predictions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent training runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.Store == nil {
				return errors.New("run history is disabled, set database.path in the config")
			}
			if predictions {
				logs, err := env.Store.LoadPredictions(limit)
				if err != nil {
					return err
				}
				return writeJSON(stdout, logs)
			}
			logs, err := env.Store.LoadTrainingLog(limit)
			if err != nil {
				return err
			}
			return writeJSON(stdout, logs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows to print, 0 for all")
	cmd.Flags().BoolVar(&predictions, "predictions", false, "print recorded predictions instead of training runs")
	return cmd
}

func newExportCmd(configPath *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "export <output.csv>",
		Short: "Re-encode the configured dataset as UTF-8 CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			data, err := dataset.Load(env.Config.Dataset.Path, env.Config.Dataset.Encoding)
			if err != nil {
				return err
			}
			if err := dataset.Write(args[0], data); err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "exported %d rows to %s\n", data.Len(), args[0])
			return err
		},
	}
}

func printComparison(stdout, stderr io.Writer, comparison *trainer.Comparison, table bool) error {
	if err := writeJSON(stdout, comparison); err != nil {
		return err
	}
	if !table {
		return nil
	}
	rendered, err := report.ComparisonTable(comparison)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stderr, rendered)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
