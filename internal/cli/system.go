package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/export"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/session"
)

type InitCmd struct {
	Force bool `help:"Rewrite the config file even if it exists."`
}

func (c *InitCmd) Run(ctx *Context) error {
	_, err := os.Stat(ctx.ConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && c.Force):
		// secrets stay in the environment or keyring
		cfg := ctx.Config
		cfg.JWTSecret = ""
		if err := cfg.Save(ctx.ConfigPath); err != nil {
			return err
		}
		ctx.printf("Wrote config to: %s\n", ctx.ConfigPath)
	case err != nil:
		return fmt.Errorf("failed to access config file: %w", err)
	default:
		ctx.printf("Using existing config at: %s\n", ctx.ConfigPath)
	}

	if err := ctx.OpenQueue(); err != nil {
		return err
	}
	ctx.printf("Initialized queue storage at: %s\n", ctx.QueueStore.Location())
	return nil
}

type LoginCmd struct {
	Token string `arg:"" help:"Session token issued by the remote."`
}

func (c *LoginCmd) Run(ctx *Context) error {
	owner, err := session.NewToken(c.Token).Owner()
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	if err := keyring.SetToken(c.Token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	ctx.printf("✓ Signed in as %s\n", owner)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *Context) error {
	if err := keyring.DeleteToken(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			ctx.println("Not signed in.")
			return nil
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	ctx.println("✓ Signed out")
	return nil
}

type ExportCmd struct {
	Format string `help:"Output format (json, csv)." enum:"json,csv" default:"json"`
	Out    string `help:"Write to this file instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}
	if !ctx.Network.IsOnline() {
		ctx.logger().Warn("remote unreachable; export only contains records loaded this session")
	}

	var w io.Writer = ctx.out()
	if c.Out != "" {
		path, err := config.ExpandPath(c.Out)
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	snap := export.Collect(ctx.Records, time.Now())
	if err := export.Write(w, export.Format(c.Format), snap); err != nil {
		return err
	}
	if c.Out != "" {
		ctx.printf("Exported %d habits to %s\n", len(snap.Habits), c.Out)
	}
	return nil
}
