package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dgallion1/docqa/internal/app"
	"github.com/dgallion1/docqa/internal/collector"
	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/parser"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "docqa",
		Short:         "Ask questions about web pages and documents",
		Long:          "docqa collects text from URLs and local files, indexes it into INDEX_DIR, and answers questions against that index with cited sources.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(os.Stdout)
	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(createProcessCommand(&verbose))
	rootCmd.AddCommand(createAskCommand(&verbose))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func createProcessCommand(verbose *bool) *cobra.Command {
	var urls []string
	var files []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Collect, chunk and index URLs and files",
		Long:  "Fetch up to MAX_URLS URLs and read any number of .txt, .pdf or .docx files, then replace the index in INDEX_DIR.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*verbose)
			if err != nil {
				return err
			}
			if len(urls) > cfg.MaxURLs {
				return fmt.Errorf("at most %d urls are accepted, got %d", cfg.MaxURLs, len(urls))
			}

			in := collector.Input{URLs: urls}
			registry := parser.DefaultRegistry(cfg.PDFFallbackPdftotext)
			for _, path := range files {
				if !registry.Supports(path) {
					// Reported as skipped by the collector; no need to read it.
					in.Files = append(in.Files, collector.Upload{Name: filepath.Base(path)})
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				in.Files = append(in.Files, collector.Upload{Name: filepath.Base(path), Data: data})
			}

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := index.NewDiskStore(cfg.IndexDir, log)
			run, procErr := a.Pipeline.Process(ctx, store, in)
			snap := run.Snapshot()

			if asJSON {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal run: %w", err)
				}
				cmd.Println(string(data))
			} else {
				for _, it := range snap.Report.Items {
					if it.Error != "" {
						cmd.PrintErrf("warning: %s %s %s: %s\n", it.Status, it.Origin.Kind, it.Origin.Name, it.Error)
					}
				}
				if procErr == nil {
					cmd.Printf("Loaded %d documents\n", snap.Documents)
					cmd.Printf("Split into %d chunks (~%d tokens)\n", snap.Chunks, snap.ApproxTokens)
					cmd.Printf("Index %s written to %s\n", snap.IndexID, cfg.IndexDir)
				}
			}
			return procErr
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to fetch (repeatable)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "local file to read (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func createAskCommand(verbose *bool) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the index in INDEX_DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*verbose)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := a.Answerer.Answer(ctx, index.NewDiskStore(cfg.IndexDir, log), args[0], nil)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal answer: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Println(res.Answer)
			if len(res.Sources) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				for _, s := range res.Sources {
					cmd.Printf("  %s\n", s)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}

// setup loads and validates configuration. Disk placement is implied: the
// CLI always reads and writes INDEX_DIR.
func setup(verbose bool) (config.Config, *slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	cfg.IndexMode = "disk"
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}
