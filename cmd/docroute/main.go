package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/af-corp/docroute/internal/app"
	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/extract"
	"github.com/af-corp/docroute/internal/orchestrator"
	"github.com/af-corp/docroute/internal/runner"
	"github.com/af-corp/docroute/internal/telemetry"
	"github.com/af-corp/docroute/internal/types"
)

// Exit codes.
const (
	exitError  = 1
	exitFailed = 2
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}

// pipelineRunner executes poppler and tesseract. Tests replace it.
var pipelineRunner runner.Runner = runner.Exec{}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "docroute",
		Short:         "Route document extraction across model backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExtractCommand())
	root.AddCommand(newRouteCommand())
	root.AddCommand(newModelsCommand())
	return root
}

type globalFlags struct {
	configDir string
	logLevel  string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.configDir, "config", "configs", "path to configuration directory")
	cmd.Flags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
}

// build loads the configuration and assembles the pipeline. Logs go to
// stderr so stdout stays machine readable.
func (g *globalFlags) build(ctx context.Context, stderr io.Writer) (*app.App, error) {
	logger := telemetry.NewLogger(stderr, g.logLevel, "text")
	slog.SetDefault(logger)
	loader := config.NewLoader(g.configDir, logger)
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := loader.Config()
	return app.New(ctx, loader.Snapshot(), app.Options{
		Logger: logger,
		Redis:  app.NewRedis(ctx, cfg.Redis, logger),
		Runner: pipelineRunner,
	})
}

func newExtractCommand() *cobra.Command {
	var (
		g           globalFlags
		mode        string
		budget      string
		docType     string
		interimPath string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract fields from a PDF or image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" && mode != config.ModeSmart && mode != config.ModeRemote && mode != config.ModeLocal {
				return cliError{code: exitError, err: fmt.Errorf("invalid --mode %q (smart|remote|local)", mode)}
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc := orchestrator.Document{
				Filename: filepath.Base(args[0]),
				Data:     data,
				Mode:     mode,
				Budget:   budget,
				DocType:  docType,
			}
			if interimPath != "" {
				raw, err := os.ReadFile(interimPath)
				if err != nil {
					return err
				}
				var fs extract.FieldSet
				if err := json.Unmarshal(raw, &fs); err != nil {
					return fmt.Errorf("parse interim %s: %w", interimPath, err)
				}
				doc.Interim = &fs
			}

			pipeline, err := g.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res := pipeline.Orchestrator.Orchestrate(cmd.Context(), doc)

			if err := writeJSON(cmd.OutOrStdout(), outPath, res); err != nil {
				return err
			}
			if !res.Success {
				return cliError{code: exitFailed, err: fmt.Errorf("extraction failed: %s", res.Error)}
			}
			return nil
		},
	}
	g.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "", "processing mode override (smart|remote|local)")
	cmd.Flags().StringVar(&budget, "budget", "", "budget override")
	cmd.Flags().StringVar(&docType, "doc-type", "", "document type override")
	cmd.Flags().StringVar(&interimPath, "interim", "", "interim field set JSON used when routed subtasks fail")
	cmd.Flags().StringVar(&outPath, "out", "", "result output path (default stdout)")
	return cmd
}

func newRouteCommand() *cobra.Command {
	var (
		g         globalFlags
		task      string
		mode      string
		pageCount int
		budget    string
		docType   string
		offline   bool
		require   []string
	)
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show the routing decision for a feature context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if task == "" {
				return cliError{code: exitError, err: errors.New("--task is required")}
			}
			pipeline, err := g.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			f := types.Features{
				Task:                 task,
				PageCount:            pageCount,
				DocType:              docType,
				Budget:               budget,
				Offline:              offline,
				RequiredCapabilities: require,
			}
			if mode == "" {
				mode = pipeline.Config.Orchestrator.Mode
			}
			d := pipeline.Orchestrator.Decide(mode, task, f)
			return writeJSON(cmd.OutOrStdout(), "", d)
		},
	}
	g.register(cmd)
	cmd.Flags().StringVar(&task, "task", types.TaskHeader, "subtask name")
	cmd.Flags().StringVar(&mode, "mode", "", "processing mode (default from configuration)")
	cmd.Flags().IntVar(&pageCount, "page-count", 1, "document page count")
	cmd.Flags().StringVar(&budget, "budget", "", "budget feature")
	cmd.Flags().StringVar(&docType, "doc-type", "", "document type feature")
	cmd.Flags().BoolVar(&offline, "offline", false, "offline feature")
	cmd.Flags().StringSliceVar(&require, "require", nil, "required capabilities, comma separated")
	return cmd
}

func newModelsCommand() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model portfolio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, err := g.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := pipeline.Orchestrator.Routing().Registry
			def, _ := reg.DefaultModel()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROVIDER\tREMOTE ID\tCAPABILITIES\tDEFAULT")
			for _, m := range reg.Models() {
				mark := ""
				if m.Name == def.Name {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.Provider, m.RemoteModelID, strings.Join(m.Capabilities, ","), mark)
			}
			return tw.Flush()
		},
	}
	g.register(cmd)
	return cmd
}

func writeJSON(stdout io.Writer, path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if path == "" {
		_, err = stdout.Write(raw)
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
