package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/quackphp/quack/internal/config"
	"github.com/quackphp/quack/internal/indexer"
	"github.com/quackphp/quack/internal/rpc"
	"github.com/quackphp/quack/internal/runner"
	"github.com/quackphp/quack/internal/watch"
	"github.com/spf13/cobra"
)

type options struct {
	projectPath string
	outputPath  string
	configPath  string
	workers     int
	leakPolicy  string
	watch       bool
	serve       bool
	noIndex     bool
	noPipeline  bool
}

func main() {
	log.SetFlags(0)

	if err := newRootCmd().Execute(); err != nil {
		color.Red("[-] Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "quack <project_path>",
		Short:         "Deduce the classes each unserialize() call site may instantiate",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.projectPath = args[0]
			if opts.outputPath == "" {
				opts.outputPath = opts.projectPath
			}
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outputPath, "output-path", "o", "", "Directory for analyzer output and results (default: project path)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: quack.yaml in the output directory)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Number of concurrent reductions (overrides config)")
	flags.StringVar(&opts.leakPolicy, "leak-policy", "", "undetermined or available (overrides config)")
	flags.BoolVar(&opts.watch, "watch", false, "Re-consolidate whenever the analyzer output changes")
	flags.BoolVar(&opts.serve, "serve", false, "Serve JSON-RPC on stdin/stdout")
	flags.BoolVar(&opts.noIndex, "no-index", false, "Do not persist results into the result index")
	flags.BoolVar(&opts.noPipeline, "no-pipeline", false, "Skip the configured pipeline and only consolidate")
	cmd.MarkFlagsMutuallyExclusive("watch", "serve")

	return cmd
}

func loadConfig(opts options) (config.Config, error) {
	path, optional := opts.configPath, false
	if path == "" {
		path, optional = filepath.Join(opts.outputPath, config.FileName), true
	}

	cfg, err := config.Load(path, optional)
	if err != nil {
		return cfg, err
	}

	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.leakPolicy != "" {
		cfg.LeakPolicy = config.LeakPolicy(opts.leakPolicy)
	}
	if opts.noIndex {
		cfg.Index = false
	}

	return cfg, cfg.Validate()
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var index *indexer.ResultIndex
	if cfg.Index {
		stateDir, err := getProjectStateFolder(opts.projectPath)
		if err != nil {
			return fmt.Errorf("failed to get project state folder: %w", err)
		}
		index, err = indexer.NewResultIndex(stateDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := index.Close(); err != nil {
				log.Printf("Failed to close result index: %v", err)
			}
		}()
	}

	// stdout carries the JSON-RPC stream in serve mode
	if opts.serve {
		return rpc.NewServer(index, cfg.Workers).Start(os.Stdin, os.Stdout)
	}

	r := runner.New(runner.Options{
		ProjectPath: opts.projectPath,
		OutputPath:  opts.outputPath,
		Config:      cfg,
		Index:       index,
		Console:     os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.noPipeline {
		_, err = r.Consolidate()
	} else {
		_, err = r.Run(ctx)
	}
	if err != nil {
		if !opts.watch {
			return err
		}
		log.Printf("Initial run failed: %v", err)
	}

	if !opts.watch {
		return nil
	}

	w, err := watch.New([]string{r.EvidencePath(), r.AvailPath()}, func() {
		if _, err := r.Consolidate(); err != nil {
			log.Printf("Consolidation failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	log.Printf("Watching %s and %s", r.EvidencePath(), r.AvailPath())
	return w.Run(ctx)
}
