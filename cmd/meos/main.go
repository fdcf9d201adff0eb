package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"meos/internal/domain"
	"meos/internal/session"
	"meos/internal/tui"
)

func main() {
	cmd := &cli.Command{
		Name:  "meos",
		Usage: "Ask questions about your journal, goals and notes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML config file (default ./meos.yaml, then ~/.config/meos/config.yaml)",
			},
			&cli.StringFlag{
				Name:    "data",
				Usage:   "Root folder holding journal/, goals/ and notes/",
				Sources: cli.EnvVars("DATA_PATH"),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Path of the persisted vector index",
				Sources: cli.EnvVars("VECTOR_DB_PATH"),
			},
			&cli.IntFlag{
				Name:  "top-k",
				Usage: "Number of chunks retrieved per question",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Use the full-screen terminal UI for chat",
			},
			&cli.BoolFlag{
				Name:  "rebuild",
				Usage: "Rebuild the index from the source files before starting",
			},
			&cli.BoolFlag{
				Name:  "check-stale",
				Usage: "Warn when source files changed since the index was built",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Write logs as JSON",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "Start an interactive question session (default)",
				Action: chat,
			},
			{
				Name:      "ask",
				Usage:     "Answer a single question and exit",
				ArgsUsage: "<question>",
				Action:    ask,
			},
			{
				Name:   "index",
				Usage:  "Rebuild and save the index, then exit",
				Action: index,
			},
		},
		Action: chat,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

func chat(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if err := a.start(ctx, cmd); err != nil {
		return err
	}

	banner, err := a.svc.Overview(ctx, domain.CategoryGoals, a.cfg.Summarizer.MaxSentences)
	if err != nil {
		a.log.Warn("goals overview unavailable", zap.Error(err))
	}
	if banner != "" {
		banner = "Your goals: " + banner
	}

	topK := a.cfg.Retrieval.TopK

	if cmd.Bool("tui") {
		_, err := tea.NewProgram(tui.New(ctx, a.svc, topK, banner), tea.WithAltScreen()).Run()
		return err
	}

	s := session.New(a.svc, topK)
	s.Banner = banner
	return s.Run(ctx, os.Stdin, os.Stdout)
}

func ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return errors.New("usage: meos ask <question>")
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if err := a.start(ctx, cmd); err != nil {
		return err
	}

	answer, err := a.svc.Answer(ctx, question, a.cfg.Retrieval.TopK)
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Println()
	session.WriteSources(os.Stdout, answer.Sources)
	return nil
}

func index(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	report, err := a.svc.Rebuild(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d chunks from %d documents into %s (%s)\n",
		report.Chunks, report.Documents, a.cfg.VectorStore.Path, report.Duration.Round(time.Millisecond))
	for _, s := range report.Skipped {
		fmt.Printf("  skipped %s: %v\n", s.Path, s.Err)
	}
	return nil
}

// start brings the index to Ready, rebuilding first when asked to.
func (a *app) start(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("rebuild") {
		if _, err := a.svc.Rebuild(ctx); err != nil {
			return err
		}
	} else if err := a.svc.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrConfigMismatch) || errors.Is(err, domain.ErrCorruptIndex) {
			return fmt.Errorf("%w (run again with --rebuild to rebuild %s)", err, a.cfg.VectorStore.Path)
		}
		return err
	}

	if cmd.Bool("check-stale") {
		if _, err := a.svc.CheckStale(ctx); err != nil {
			return err
		}
	}
	return nil
}

