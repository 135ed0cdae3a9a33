package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitsync/internal/cli"
	"github.com/julianstephens/habitsync/internal/config"
	apperrors "github.com/julianstephens/habitsync/internal/errors"
	"github.com/julianstephens/habitsync/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"string" default:"~/.config/habitsync/config.yaml"`
	Debug   bool   `help:"Log debug output to stderr."`

	Init    cli.InitCmd    `cmd:"" help:"Create the config file and initialize queue storage."`
	Habit   cli.HabitCmd   `cmd:"" help:"Manage habits."`
	Done    cli.DoneCmd    `cmd:"" help:"Toggle a habit's completion for a day."`
	Today   cli.TodayCmd   `cmd:"" help:"Show today's habits and completion rate." default:"1"`
	Streak  cli.StreakCmd  `cmd:"" help:"Show streak statistics for a habit."`
	Status  cli.StatusCmd  `cmd:"" help:"Show connection and sync queue status."`
	Sync    cli.SyncCmd    `cmd:"" help:"Replay queued writes against the remote now."`
	Queue   cli.QueueCmd   `cmd:"" help:"Inspect and manage the offline write queue."`
	Daemon  cli.DaemonCmd  `cmd:"" help:"Run the background sync loop until interrupted."`
	Serve   cli.ServeCmd   `cmd:"" help:"Serve the document API."`
	Token   cli.TokenCmd   `cmd:"" help:"Manage session tokens."`
	Export  cli.ExportCmd  `cmd:"" help:"Export habits and completions."`
	Login   cli.LoginCmd   `cmd:"" help:"Store a session token in the OS keyring."`
	Logout  cli.LogoutCmd  `cmd:"" help:"Remove the session token from the OS keyring."`
	Keyring cli.KeyringCmd `cmd:"" help:"Manage the queue connection string in the OS keyring."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("habitsync"),
		kong.Description("Offline-first habit tracker with background sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": "v0.1.0"},
	)

	configPath, err := config.ExpandPath(CLI.Config)
	if err != nil {
		apperrors.Fatalf("invalid config path %q: %v", CLI.Config, err)
	}

	long := ctx.Command() == "daemon" || ctx.Command() == "serve"
	if err := logger.Init(logger.Config{
		Debug:     CLI.Debug,
		ConfigDir: filepath.Dir(configPath),
		Stderr:    long,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	apperrors.Fatal(err)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCtx := &cli.Context{
		Ctx:        sigCtx,
		Config:     cfg,
		ConfigPath: configPath,
		Out:        os.Stdout,
	}

	err = ctx.Run(appCtx)
	appCtx.Close()
	stop()
	apperrors.Fatal(err)
}
