package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"cardioml/app"
	"cardioml/dataset"
	"cardioml/predictor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errorOutput is the only shape written to stdout on failure.
type errorOutput struct {
	Error string `json:"error"`
}

// reportedError has already been written to stdout.
type reportedError struct{ error }

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var reported reportedError
	switch {
	case errors.As(err, &reported):
	case errors.Is(err, dataset.ErrLoad):
		fmt.Fprintf(stderr, "predict: %v: %v\n", dataset.ErrLoad, err)
	default:
		fmt.Fprintf(stderr, "predict: %v\n", err)
	}
	return 1
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "predict [input.json]",
		Short: "Predict heart disease for one record with every trained model",
		Long: `Read one patient record (13 numeric fields) from a JSON file and print each
model's prediction and confidence. Models are trained first when missing.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(configPath)
			if err != nil {
				return report(stdout, "Prediction failed", err)
			}
			defer env.Close()

			inputPath := env.Config.Predictor.InputPath
			if len(args) == 1 {
				inputPath = args[0]
			}
			record, err := predictor.ReadInput(inputPath)
			if err != nil {
				return report(stdout, "Failed to read input data", err)
			}

			var opts []predictor.Option
			if env.Store != nil {
				opts = append(opts, predictor.WithStore(env.Store))
			}
			p, err := predictor.New(env.Config, env.Trainer, env.Logger, opts...)
			if err != nil {
				return report(stdout, "Prediction failed", err)
			}
			predictions, err := p.Predict(cmd.Context(), record)
			if errors.Is(err, dataset.ErrLoad) {
				return err
			}
			if err != nil {
				return report(stdout, "Prediction failed", err)
			}
			return json.NewEncoder(stdout).Encode(predictions)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetContext(context.Background())
	cmd.Flags().StringVar(&configPath, "config", app.DefaultConfigPath, "YAML config file")
	return cmd
}

func report(stdout io.Writer, prefix string, cause error) error {
	if err := json.NewEncoder(stdout).Encode(errorOutput{Error: fmt.Sprintf("%s: %v", prefix, cause)}); err != nil {
		return err
	}
	return reportedError{cause}
}
