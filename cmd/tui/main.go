// Command tui browses the days of an itinerary on the live day map.
//
//	tui plan.json
//	tui -trip 42
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

	"github.com/UnknownOlympus/waypoint/internal/app"
	"github.com/UnknownOlympus/waypoint/internal/config"
	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
)

var errNoSource = errors.New("pass an itinerary file or -trip with a saved trip id")

func main() {
	tripID := flag.Int64("trip", 0, "saved trip id (requires the database settings)")
	logPath := flag.String("log", "", "write logs to this file")
	flag.Parse()

	if err := run(*tripID, *logPath, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(tripID int64, logPath, planPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	// The terminal owns stdout, so logs go to a file or nowhere.
	var out io.Writer = io.Discard
	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer file.Close()
		out = file
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	plan, err := loadPlan(ctx, stack, tripID, planPath)
	if err != nil {
		return err
	}

	// Mount errors stay visible in the map panel.
	if err = stack.Service.Mount(ctx, stack.Container("tui")); err != nil {
		logger.ErrorContext(ctx, "Map is unavailable", "error", err)
	}
	defer stack.Service.Unmount(context.WithoutCancel(ctx))

	p := tea.NewProgram(
		tui.New(ctx, stack.Service, plan),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err = p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run terminal client: %w", err)
	}

	return nil
}

func loadPlan(ctx context.Context, stack *app.Stack, tripID int64, planPath string) (*itinerary.Itinerary, error) {
	switch {
	case planPath != "":
		return itinerary.Load(planPath)
	case tripID != 0:
		if stack.Trips == nil {
			return nil, errors.New("saved trips need WAYPOINT_DB_HOST or DB_HOST")
		}
		data, err := stack.Trips.FetchItinerary(ctx, tripID)
		if err != nil {
			return nil, err
		}
		return itinerary.Parse(data)
	default:
		return nil, errNoSource
	}
}
