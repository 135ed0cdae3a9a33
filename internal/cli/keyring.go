package cli

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/storage/postgres"
)

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store the queue's PostgreSQL connection string in the OS keyring."`
	Get    KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
	Status KeyringStatusCmd `cmd:"" help:"Check whether the OS keyring is available." default:"1"`
}

// KeyringSetCmd stores queue credentials in the OS keyring
type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string for the queue store."`
}

func (c *KeyringSetCmd) Run(ctx *Context) error {
	if !storage.IsPostgres(c.ConnectionString) {
		return errors.New("connection string must be a postgres:// or postgresql:// URL")
	}
	if _, err := postgres.ValidateConnString(c.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		ctx.println("⚠ Connection string contains a password; it is stored as-is in the OS keyring.")
	}

	if err := keyring.SetConnectionString(c.ConnectionString); err != nil {
		return fmt.Errorf("failed to store connection string in keyring: %w", err)
	}
	ctx.println("✓ Connection string stored in OS keyring")
	if ctx.Config.Queue != config.QueueKeyring {
		ctx.printf("  Set queue: %s in %s to use it\n", config.QueueKeyring, ctx.ConfigPath)
	}
	return nil
}

type KeyringGetCmd struct{}

func (c *KeyringGetCmd) Run(ctx *Context) error {
	dsn, err := keyring.GetConnectionString()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring; use 'habitsync keyring set' to store one")
		}
		return fmt.Errorf("failed to retrieve connection string from keyring: %w", err)
	}
	ctx.println(redact(dsn))
	return nil
}

type KeyringDeleteCmd struct{}

func (c *KeyringDeleteCmd) Run(ctx *Context) error {
	if err := keyring.DeleteConnectionString(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return fmt.Errorf("failed to delete connection string from keyring: %w", err)
	}
	ctx.println("✓ Connection string deleted from OS keyring")
	return nil
}

type KeyringStatusCmd struct{}

func (c *KeyringStatusCmd) Run(ctx *Context) error {
	if !keyring.IsAvailable() {
		ctx.println("✗ OS keyring is not available on this system")
		return keyring.ErrKeyringUnavailable
	}
	ctx.println("✓ OS keyring is available")

	report := func(what string, get func() (string, error)) {
		switch _, err := get(); {
		case err == nil:
			ctx.printf("✓ %s is stored\n", what)
		case errors.Is(err, keyring.ErrNotFound):
			ctx.printf("  No %s stored\n", what)
		default:
			ctx.printf("✗ Failed to read %s: %v\n", what, err)
		}
	}
	report("connection string", keyring.GetConnectionString)
	report("session token", keyring.GetToken)
	return nil
}
