package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/cmd/config"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/player"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/tui"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/utils"
)

const headlessPollInterval = 100 * time.Millisecond

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	headless := flag.Bool("headless", false, "Play the playlist once without the terminal interface.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file or directory>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := config.LoadConfig(*configFilePath); err != nil {
		panic(err)
	}
	cfg, err := config.FromViper()
	if err != nil {
		slog.Error("error while reading config", "err", err)
		panic(err)
	}

	// The interface owns the terminal, so logs only go to the log file
	var fallback io.Writer = os.Stdout
	if !*headless {
		fallback = io.Discard
	}
	logFilePointer, err := utils.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFile, fallback, slog.HandlerOptions{})
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------

	pl, err := playlist.FromPaths(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "cassette:", err)
		flag.Usage()
		os.Exit(2)
	}

	sink, err := player.OpenSink(cfg.SinkOptions())
	if err != nil {
		slog.Error("error while opening audio output", "err", err, "output", cfg.Sink)
		fmt.Fprintln(os.Stderr, "cassette:", err)
		os.Exit(1)
	}

	p, err := player.New(pl, sink, cfg.PlayerOptions())
	if err != nil {
		sink.Close()
		slog.Error("error while creating player", "err", err)
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	// --------------------------------------------------------------------------------

	if *headless {
		playHeadless(ctx, p)
	} else {
		model := tui.NewModel(p, tui.Options{
			Refresh:  cfg.Refresh,
			SeekStep: cfg.SeekStep,
			Theme:    cfg.Theme,
		})
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("error while running interface", "err", err)
		}
	}

	cancel()
	if err := <-runErr; err != nil {
		slog.Error("player stopped with error", "err", err)
		os.Exit(1)
	}
}

// Play from the first track until the playlist runs out or ctx is cancelled.
func playHeadless(ctx context.Context, p *player.Player) {
	if err := p.Execute(ctx, transport.LoadTrack(0)); err != nil {
		slog.Error("error while starting playback", "err", err)
		return
	}

	ticker := time.NewTicker(headlessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Done():
			return
		case <-ticker.C:
			view := p.State()
			if view.State == transport.Stopped {
				slog.Info("playback finished", "lastError", view.LastError, "underruns", view.Underruns)
				return
			}
		}
	}
}
