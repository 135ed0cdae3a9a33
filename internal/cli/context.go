package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitsync/internal/backup"
	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/gateway/httpdoc"
	"github.com/julianstephens/habitsync/internal/gateway/pgdoc"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/netstatus"
	"github.com/julianstephens/habitsync/internal/notifier"
	"github.com/julianstephens/habitsync/internal/queue"
	"github.com/julianstephens/habitsync/internal/records"
	"github.com/julianstephens/habitsync/internal/session"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/syncer"
)

// LocalOwner is the owner used with the in-process remote when no token is set
const LocalOwner = "local"

// probeTimeout bounds the reachability check done when a command starts
const probeTimeout = 3 * time.Second

// Context carries the wired components every command runs against.
// Components are built lazily by Open so commands like init and login
// never touch the remote.
type Context struct {
	Ctx        context.Context
	Config     config.Config
	ConfigPath string
	Out        io.Writer

	// Gateway and Session may be preset (tests, serve); Open fills in the rest
	Gateway gateway.Gateway
	Session session.Provider

	QueueStore storage.Store
	Queue      *queue.Queue
	Network    *netstatus.Monitor
	Records    *records.Store
	Engine     *syncer.Engine

	log     *log.Logger
	opened  bool
	closers []func()
}

func (c *Context) base() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

// OpenQueue initializes the queue store and restores the persisted queue
func (c *Context) OpenQueue() error {
	if c.Queue != nil {
		return nil
	}
	st, err := c.openQueueStore()
	if err != nil {
		return err
	}
	if err := st.Init(c.base()); err != nil {
		return fmt.Errorf("failed to initialize queue store: %w", err)
	}
	c.closers = append(c.closers, func() {
		if err := st.Close(); err != nil {
			c.logger().Warn("failed to close queue store", "err", err)
		}
	})

	q := queue.New(st)
	if err := q.Load(c.base()); err != nil {
		return err
	}
	c.QueueStore = st
	c.Queue = q
	return nil
}

// openQueueStore resolves the queue location, reading it from the keyring
// when the config says so. Only keyring-held DSNs may embed a password.
func (c *Context) openQueueStore() (storage.Store, error) {
	if c.Config.Queue != config.QueueKeyring {
		if storage.IsPostgres(c.Config.Queue) && storage.HasEmbeddedCredentials(c.Config.Queue) {
			return nil, errors.New("PostgreSQL queue connection strings with embedded credentials are not allowed in config; use 'habitsync keyring set', .pgpass or PGPASSWORD instead")
		}
		return storage.Open(c.Config.Queue)
	}

	dsn, err := keyring.GetConnectionString()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, errors.New("queue is set to keyring but no connection string is stored; run 'habitsync keyring set' first")
		}
		return nil, fmt.Errorf("failed to read queue connection string from keyring: %w", err)
	}
	return storage.OpenTrusted(dsn)
}

// Open wires the queue, gateway, network monitor, record store and sync
// engine, then loads the owner's records when the remote is reachable.
func (c *Context) Open() error {
	if c.opened {
		return nil
	}
	if err := c.OpenQueue(); err != nil {
		return err
	}

	token := c.token()
	if c.Gateway == nil {
		gw, closeFn, err := openGateway(c.base(), c.Config.Remote, func() (string, error) { return token, nil })
		if err != nil {
			return err
		}
		c.Gateway = gw
		c.closers = append(c.closers, closeFn)
	}
	if c.Session == nil {
		if token == "" && c.Config.Remote == config.RemoteMemory {
			c.Session = session.NewStatic(LocalOwner)
		} else {
			c.Session = session.NewToken(token)
		}
	}

	loc, err := c.Config.Location()
	if err != nil {
		return err
	}

	c.Network = netstatus.New(c.probe())
	c.Records = records.New(c.Gateway, c.Queue, c.Session, records.WithLocation(loc))

	opts := []syncer.Option{
		syncer.WithApplier(c.Records),
		syncer.WithInterval(c.Config.SyncInterval),
	}
	if c.Config.NotifyOnLoss {
		opts = append(opts, syncer.WithLossReporter(notifier.New()))
	}
	c.Engine = syncer.New(c.Queue, c.Gateway, c.Network, opts...)

	if c.Network.IsOnline() {
		if err := c.Records.Load(c.base()); err != nil {
			if errors.Is(err, session.ErrNoOwner) || errors.Is(err, session.ErrInvalidToken) {
				return fmt.Errorf("%w; run 'habitsync login TOKEN' first", err)
			}
			c.logger().Warn("failed to load records; continuing offline", "err", err)
			c.Network.Set(false)
		}
	}
	c.opened = true
	return nil
}

// Close releases everything Open acquired, in reverse order
func (c *Context) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// backups archives dropped writes next to the config file
func (c *Context) backups() *backup.Manager {
	return backup.NewManager(filepath.Dir(c.ConfigPath))
}

func (c *Context) logger() *log.Logger {
	if c.log == nil {
		c.log = logger.With("cli")
	}
	return c.log
}

// token returns the session token from the environment or the keyring
func (c *Context) token() string {
	if c.Config.Token != "" {
		return c.Config.Token
	}
	tok, err := keyring.GetToken()
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			c.logger().Debug("keyring lookup failed", "err", err)
		}
		return ""
	}
	return tok
}

// probe reports whether the gateway answered a ping. Gateways without a
// Ping method are assumed reachable.
func (c *Context) probe() bool {
	p, ok := c.Gateway.(gateway.Pinger)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(c.base(), probeTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		c.logger().Info("remote unreachable; working offline", "err", err)
		return false
	}
	return true
}

// openGateway picks the remote implementation from its address
func openGateway(ctx context.Context, remote string, token httpdoc.TokenSource) (gateway.Gateway, func(), error) {
	switch {
	case remote == config.RemoteMemory:
		return gateway.NewMemory(), func() {}, nil
	case storage.IsPostgres(remote):
		pool, err := pgdoc.NewPool(ctx, remote)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open remote: %w", err)
		}
		return pgdoc.New(pool), pool.Close, nil
	case strings.HasPrefix(remote, "http://") || strings.HasPrefix(remote, "https://"):
		return httpdoc.New(remote, httpdoc.WithToken(token)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported remote %q: expected http(s)://, postgres:// or %q", remote, config.RemoteMemory)
	}
}

// reportMutation turns a queued remote failure into a notice; the write will
// be replayed by the next sync.
func (c *Context) reportMutation(err error, done string) error {
	switch {
	case err == nil:
		c.println(done)
		return nil
	case errors.Is(err, records.ErrQueued):
		c.printf("⚠ Remote unavailable; change queued for the next sync (%d pending)\n", c.Queue.Count())
		c.logger().Debug("mutation queued", "err", err)
		return nil
	default:
		return err
	}
}
