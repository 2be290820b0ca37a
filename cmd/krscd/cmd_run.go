package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kroutesync/krsc/pkg/config"
	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/ipc"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/netlinkbridge"
	"github.com/kroutesync/krsc/pkg/reconciler"
	"github.com/kroutesync/krsc/pkg/util"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reconciler loop until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath)
		},
	}
	return cmd
}

func runDaemon(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("krscd: %w", err)
	}
	mustLogLevel(cfg.LogLevel)

	ifaces := iface.NewTable()
	registry := ktable.NewRegistry(ifaces)

	// Borrowed tables must be created after the tables they borrow from, so
	// two passes: owners first, then borrowers.
	for _, tc := range cfg.Tables {
		if tc.NexthopOwner != 0 && tc.NexthopOwner != tc.ID {
			continue
		}
		if err := newTable(registry, tc); err != nil {
			return fmt.Errorf("krscd: %w", err)
		}
	}
	for _, tc := range cfg.Tables {
		if tc.NexthopOwner == 0 || tc.NexthopOwner == tc.ID {
			continue
		}
		if err := newTable(registry, tc); err != nil {
			return fmt.Errorf("krscd: %w", err)
		}
	}

	sink := ipc.NewSink(cfg.RedisAddr, cfg.RedisDB)
	defer sink.Close()

	transport, err := netlinkbridge.NewLinuxTransport()
	if err != nil {
		return fmt.Errorf("krscd: %w", err)
	}
	defer transport.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := fanInBridges(ctx, cfg)
	go mirrorStateLoop(ctx, sink, ifaces, registry)

	log := util.WithFields(map[string]interface{}{"component": "krscd"})
	r := reconciler.New(registry, transport, sink, events, log)

	log.Info("krscd starting")
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("krscd: reconciler: %w", err)
	}
	log.Info("krscd stopped")
	return nil
}

// mirrorStateLoop periodically republishes interface and FIB table metadata
// to the IPC mirror so show-interface and show-fib-tables can be answered
// by a separate krscd show invocation without a live connection into this
// process (spec.md §6's show-interface/show-fib-tables control queries).
func mirrorStateLoop(ctx context.Context, sink *ipc.Sink, ifaces *iface.Table, registry *ktable.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	mirror := func() {
		sink.MirrorInterfaces(ifaces.All())
		sink.MirrorTables(registry.All())
	}
	mirror()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mirror()
		}
	}
}

func newTable(registry *ktable.Registry, tc config.TableConfig) error {
	filter, err := tc.Filter()
	if err != nil {
		return err
	}
	_, err = registry.New(tc.ID, tc.Name, tc.NexthopOwner, filter)
	if err != nil {
		return err
	}
	t := registry.Get(tc.ID)
	t.NoFIB = tc.NoFIB
	t.NoFIBSync = tc.NoFIBSync
	t.NoEvaluate = tc.NoEvaluate
	return nil
}

// fanInBridges subscribes one netlink bridge per table that actually
// touches the kernel FIB and merges their events onto a single channel,
// since the reconciler's single goroutine expects one event source
// (spec.md §5).
func fanInBridges(ctx context.Context, cfg *config.Config) <-chan reconciler.Event {
	out := make(chan reconciler.Event, 256)
	var wg sync.WaitGroup

	for _, tc := range cfg.Tables {
		if tc.NoFIB {
			continue
		}
		bridge := netlinkbridge.NewBridge(tc.ID, 64)
		wg.Add(1)
		go func(tableID uint32) {
			defer wg.Done()
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				util.WithTable(tableID).WithError(err).Warn("netlink bridge exited")
			}
		}(tc.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range bridge.Events() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
