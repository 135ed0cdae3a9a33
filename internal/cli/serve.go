package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julianstephens/habitsync/internal/api"
	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/gateway/pgdoc"
	"github.com/julianstephens/habitsync/internal/session"
	"github.com/julianstephens/habitsync/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// ErrNoJWTSecret is returned by commands that sign or verify tokens without a secret
var ErrNoJWTSecret = errors.New("no JWT secret configured; set jwt_secret or HABITSYNC_JWT_SECRET")

type ServeCmd struct {
	Addr     string `help:"Listen address (default: server.addr from config)."`
	Database string `help:"PostgreSQL URL for the document store (default: remote from config if it is postgres://, else in-memory)."`
}

func (c *ServeCmd) Run(ctx *Context) error {
	if ctx.Config.JWTSecret == "" {
		return ErrNoJWTSecret
	}

	addr := c.Addr
	if addr == "" {
		addr = ctx.Config.Server.Addr
	}

	gw, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	handler := api.New(gw, session.NewManager(ctx.Config.JWTSecret))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ctx.logger().Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.base().Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	ctx.logger().Info("server stopped")
	return nil
}

func (c *ServeCmd) openStore(ctx *Context) (gateway.Gateway, func(), error) {
	if ctx.Gateway != nil {
		return ctx.Gateway, func() {}, nil
	}

	dsn := c.Database
	if dsn == "" && storage.IsPostgres(ctx.Config.Remote) {
		dsn = ctx.Config.Remote
	}
	if dsn == "" {
		ctx.logger().Warn("serving from an in-memory store; documents are lost on exit")
		return gateway.NewMemory(), func() {}, nil
	}

	pool, err := pgdoc.NewPool(ctx.base(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect db: %w", err)
	}
	st := pgdoc.New(pool)
	if err := st.Migrate(ctx.base()); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

type TokenCmd struct {
	Issue TokenIssueCmd `cmd:"" help:"Issue a session token for a user."`
}

type TokenIssueCmd struct {
	UserID string        `arg:"" help:"Owner ID the token authenticates."`
	TTL    time.Duration `help:"Token lifetime." default:"720h"`
}

func (c *TokenIssueCmd) Run(ctx *Context) error {
	if ctx.Config.JWTSecret == "" {
		return ErrNoJWTSecret
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("invalid user id %q", c.UserID)
	}
	tok, err := session.NewManager(ctx.Config.JWTSecret).GenerateToken(c.UserID, c.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	ctx.println(tok)
	return nil
}
