package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/syncer"
)

type StatusCmd struct{}

func (c *StatusCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}
	ctx.println(renderStatus(statusView{
		Status: ctx.Engine.Status(),
		Failed: len(ctx.Queue.Failed()),
		Remote: redact(ctx.Config.Remote),
		Queue:  ctx.QueueStore.Location(),
		Habits: len(ctx.Records.Habits()),
		Now:    time.Now(),
	}))
	return nil
}

type SyncCmd struct{}

func (c *SyncCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	res, err := ctx.Engine.ForceSyncNow(ctx.base())
	switch {
	case errors.Is(err, syncer.ErrOffline):
		return fmt.Errorf("cannot sync: remote %s is unreachable (%d writes pending)", redact(ctx.Config.Remote), ctx.Queue.Count())
	case err != nil:
		return err
	}

	if res.Attempted == 0 {
		ctx.println("Nothing to sync.")
		return nil
	}
	ctx.printf("Synced %d of %d writes", res.Succeeded, res.Attempted)
	if res.Failed > 0 {
		ctx.printf(", %d will be retried", res.Failed)
	}
	if res.Discarded > 0 {
		ctx.printf(", %d discarded after %d attempts", res.Discarded, constants.MaxRetries)
	}
	ctx.println()
	return nil
}

type QueueCmd struct {
	List    QueueListCmd    `cmd:"" help:"List pending and failed writes." default:"1"`
	Retry   QueueRetryCmd   `cmd:"" help:"Move failed writes back to the pending queue."`
	Clear   QueueClearCmd   `cmd:"" help:"Drop all failed writes, archiving them first."`
	Restore QueueRestoreCmd `cmd:"" help:"Re-queue writes from an archive made by clear."`
}

type QueueListCmd struct{}

func (c *QueueListCmd) Run(ctx *Context) error {
	if err := ctx.OpenQueue(); err != nil {
		return err
	}

	pending, failed := ctx.Queue.Pending(), ctx.Queue.Failed()
	if len(pending) == 0 && len(failed) == 0 {
		ctx.println("Queue is empty.")
		return nil
	}

	tw := tabwriter.NewWriter(ctx.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tOPERATION\tCOLLECTION\tTARGET\tRETRIES\tQUEUED")
	row := func(state string, w models.PendingWrite) {
		target, _ := w.Payload.ID()
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", w.ID, state, w.Operation, w.Collection, target, w.RetryCount, w.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	for _, w := range pending {
		row("pending", w)
	}
	for _, w := range failed {
		row("failed", w)
	}
	return tw.Flush()
}

type QueueRetryCmd struct {
	ID  string `arg:"" optional:"" help:"Failed write ID."`
	All bool   `help:"Retry every failed write."`
}

func (c *QueueRetryCmd) Run(ctx *Context) error {
	if err := ctx.OpenQueue(); err != nil {
		return err
	}

	switch {
	case c.All:
		n, err := ctx.Queue.RetryAllFailed(ctx.base())
		if err != nil {
			return err
		}
		ctx.printf("Moved %d failed writes back to pending\n", n)
	case c.ID != "":
		if err := ctx.Queue.RetryFailed(ctx.base(), c.ID); err != nil {
			return err
		}
		ctx.printf("Moved %s back to pending\n", c.ID)
	default:
		return errors.New("specify a write ID or --all")
	}
	return nil
}

type QueueClearCmd struct{}

func (c *QueueClearCmd) Run(ctx *Context) error {
	if err := ctx.OpenQueue(); err != nil {
		return err
	}

	failed := ctx.Queue.Failed()
	if len(failed) == 0 {
		ctx.println("No failed writes to drop.")
		return nil
	}
	path, err := ctx.backups().CreateBackup(failed)
	if err != nil {
		return fmt.Errorf("refusing to drop failed writes: %w", err)
	}

	dropped, err := ctx.Queue.ClearFailed(ctx.base())
	if err != nil {
		return err
	}
	ctx.printf("Dropped %d failed writes (archived to %s)\n", len(dropped), path)
	return nil
}

type QueueRestoreCmd struct {
	Path string `arg:"" optional:"" help:"Archive file (default: the newest archive)." type:"path"`
}

func (c *QueueRestoreCmd) Run(ctx *Context) error {
	if err := ctx.OpenQueue(); err != nil {
		return err
	}

	mgr := ctx.backups()
	path := c.Path
	if path == "" {
		latest, err := mgr.Latest()
		if err != nil {
			return err
		}
		path = latest.Path
	}

	writes, err := mgr.ReadBackup(path)
	if err != nil {
		return err
	}
	for _, w := range writes {
		if _, err := ctx.Queue.Enqueue(ctx.base(), w.Operation, w.Collection, w.Payload); err != nil {
			return fmt.Errorf("failed to re-queue write %s: %w", w.ID, err)
		}
	}
	ctx.printf("Re-queued %d writes from %s\n", len(writes), path)
	return nil
}

type DaemonCmd struct {
	ProbeInterval time.Duration `help:"How often to check whether the remote is reachable." default:"10s"`
}

func (c *DaemonCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx.base())
	defer cancel()

	if p, ok := ctx.Gateway.(gateway.Pinger); ok {
		go ctx.Network.Probe(runCtx, p, c.ProbeInterval)
	}

	statuses, stop := ctx.Engine.Subscribe()
	defer stop()
	go func() {
		for st := range statuses {
			ctx.logger().Debug("status", "online", st.IsOnline, "syncing", st.IsSyncing, "pending", st.PendingWriteCount)
		}
	}()

	ctx.logger().Info("daemon started", "remote", redact(ctx.Config.Remote), "interval", ctx.Config.SyncInterval)
	ctx.println("habitsync daemon running; press Ctrl+C to stop")

	// Drain whatever is already queued before waiting on the timer
	if ctx.Network.IsOnline() && ctx.Queue.Count() > 0 {
		if _, err := ctx.Engine.Sync(runCtx); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			ctx.logger().Warn("initial sync failed", "err", err)
		}
	}

	err := ctx.Engine.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		ctx.logger().Info("daemon stopped")
		return nil
	}
	return err
}
