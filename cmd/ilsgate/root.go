package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ilsgate/internal/customer"
	"ilsgate/internal/flat"
	"ilsgate/internal/notes"
	"ilsgate/internal/pipeline"
	"ilsgate/internal/platform/config"
	"ilsgate/internal/platform/logger"
	"ilsgate/internal/platform/metrics"
	"ilsgate/internal/policy"
	"ilsgate/pkg/platform/circuit"
)

// errRejected signals that at least one registration was rejected. The
// details have already been reported.
var errRejected = errors.New("registration rejected")

// flagKeys maps CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"policy":                 "policy_file",
	"output-dir":             "output_dir",
	"overwrite":              "overwrite",
	"workers":                "workers",
	"hook-timeout":           "hook_timeout",
	"hook-failure-threshold": "hook_failure_threshold",
	"hook-cooldown":          "hook_cooldown",
	"log-level":              "log_level",
	"log-format":             "log_format",
	"metrics-file":           "metrics_file",
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	service  *pipeline.Service
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	var partner string
	cmd := &cobra.Command{
		Use:           "ilsgate",
		Short:         "Normalize partner patron registrations into ILS flat records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.String("policy", "", "Policy catalog file (YAML or JSON)")
	flags.String("output-dir", "", "Directory for .flat files; stdout when empty")
	flags.Bool("overwrite", true, "Replace existing .flat files")
	flags.Int("workers", 4, "Concurrent conversions in batch mode")
	flags.Duration("hook-timeout", notes.DefaultTimeout, "Time limit for a note hook call")
	flags.Int("hook-failure-threshold", circuit.DefaultFailureThreshold, "Consecutive note hook failures before the hook is skipped")
	flags.Duration("hook-cooldown", circuit.DefaultCooldown, "How long a failing note hook is skipped")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.StringVar(&partner, "partner", "", "Partner id; the library policy alone when empty")

	cmd.AddCommand(newConvertCommand(fs, &partner))
	cmd.AddCommand(newBatchCommand(fs, &partner))
	return cmd
}

// overrides collects the flags the user actually set.
func overrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		out[key] = f.Value.String()
	}
	return out
}

func newApp(cmd *cobra.Command, fs afero.Fs) (*app, error) {
	cfg, err := config.Load(overrides(cmd))
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	catalog := &policy.Catalog{}
	if cfg.PolicyFile == "" {
		log.Warn("no policy catalog configured, using empty library policy")
	} else if catalog, err = policy.LoadCatalog(fs, cfg.PolicyFile, log); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	writer := flat.NewWriter(
		flat.WithFs(fs),
		flat.WithOverwrite(cfg.Overwrite),
		flat.WithSink(cmd.OutOrStdout()),
		flat.WithWriterLogger(log),
	)
	service, err := pipeline.New(catalog,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(metrics.New(registry)),
		pipeline.WithHookTimeout(cfg.HookTimeout),
		pipeline.WithHookBreaker(cfg.HookFailureThreshold, cfg.HookCooldown),
		pipeline.WithWriter(writer),
		pipeline.WithOutputDir(cfg.OutputDir),
		pipeline.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: log, registry: registry, service: service}, nil
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
		a.logger.Error("failed to write metrics file", "path", a.cfg.MetricsFile, "error", err)
	}
}

// readInput reads the named file, or stdin for "-" or no name.
func readInput(cmd *cobra.Command, fs afero.Fs, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := afero.ReadFile(fs, args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func report(w io.Writer, res *pipeline.Result) {
	if res.Err != nil {
		fmt.Fprintf(w, "%s: %v\n", res.ID, res.Err)
	}
	for _, fe := range res.Errors {
		fmt.Fprintf(w, "%s: %s\n", res.ID, fe.Message)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "%s: warning: %s\n", res.ID, warning)
	}
}

func newConvertCommand(fs afero.Fs, partner *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert one JSON registration (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, fs)
			if err != nil {
				return err
			}
			defer a.flushMetrics()

			data, err := readInput(cmd, fs, args)
			if err != nil {
				return err
			}
			res, err := a.service.ConvertJSON(cmd.Context(), *partner, data)
			if err != nil {
				return err
			}
			report(cmd.ErrOrStderr(), res)
			if res.Record.OK() {
				if err := a.service.Write(res); err != nil {
					return err
				}
			}
			if res.Outcome() == metrics.OutcomeRejected {
				return errRejected
			}
			return nil
		},
	}
	return cmd
}

func newBatchCommand(fs afero.Fs, partner *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Convert a JSON array of registrations (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, fs)
			if err != nil {
				return err
			}
			defer a.flushMetrics()

			data, err := readInput(cmd, fs, args)
			if err != nil {
				return err
			}
			raws, err := customer.ParseRawList(data)
			if err != nil {
				return err
			}
			results, err := a.service.ConvertBatch(cmd.Context(), *partner, raws, pipeline.BatchOptions{Write: true})
			if err != nil {
				return err
			}

			counts := map[string]int{}
			failedWrites := 0
			for _, res := range results {
				report(cmd.ErrOrStderr(), res)
				counts[res.Outcome()]++
				if res.WriteErr != nil && res.Record.OK() {
					failedWrites++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.ID, res.WriteErr)
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "converted %d: %d ok, %d invalid, %d rejected\n",
				len(results), counts[metrics.OutcomeOK], counts[metrics.OutcomeInvalid], counts[metrics.OutcomeRejected])

			if failedWrites > 0 {
				return fmt.Errorf("%d flat records could not be written", failedWrites)
			}
			if counts[metrics.OutcomeRejected] > 0 {
				return errRejected
			}
			return nil
		},
	}
	return cmd
}
