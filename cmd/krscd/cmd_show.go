package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kroutesync/krsc/pkg/cli"
	"github.com/kroutesync/krsc/pkg/config"
	"github.com/kroutesync/krsc/pkg/ipc"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Query krscd's mirrored state",
	}
	cmd.AddCommand(
		newShowKRouteCmd(),
		newShowNexthopCmd(),
		newShowInterfaceCmd(),
		newShowFIBTablesCmd(),
	)
	return cmd
}

func openStore() (*ipc.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("krscd show: %w", err)
	}
	return ipc.NewStore(cfg.RedisAddr, cfg.RedisDB), nil
}

func newShowKRouteCmd() *cobra.Command {
	var (
		tableID uint32
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "kroute",
		Short: "Show mirrored routes for a table (show-kroute / show-kroute-addr)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var replies []ipc.Reply
			if addr != "" {
				replies, err = store.ShowNetworkAddr(tableID, addr)
			} else {
				replies, err = store.ShowNetwork(tableID)
			}
			if err != nil {
				return fmt.Errorf("krscd show kroute: %w", err)
			}
			renderReplies(replies, "nexthop", "ifindex", "flags")
			return nil
		},
	}
	cmd.Flags().Uint32Var(&tableID, "table", 0, "FIB table id")
	cmd.Flags().StringVar(&addr, "addr", "", "restrict to one destination address (show-kroute-addr)")
	return cmd
}

func newShowNexthopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nexthop",
		Short: "Show mirrored nexthop resolution state (show-nexthop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			replies, err := store.ShowNexthop()
			if err != nil {
				return fmt.Errorf("krscd show nexthop: %w", err)
			}
			renderReplies(replies, "valid", "connected", "ifindex", "net")
			return nil
		},
	}
	return cmd
}

func newShowInterfaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interface",
		Short: "Show mirrored interface state (show-interface)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			replies, err := store.ShowInterface()
			if err != nil {
				return fmt.Errorf("krscd show interface: %w", err)
			}
			renderReplies(replies, "name", "up", "nh_reachable")
			return nil
		},
	}
	return cmd
}

func newShowFIBTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fib-tables",
		Short: "Show configured FIB tables (show-fib-tables)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			replies, err := store.ShowFIBTables()
			if err != nil {
				return fmt.Errorf("krscd show fib-tables: %w", err)
			}
			renderReplies(replies, "name", "coupled", "no_fib", "no_fib_sync", "no_evaluate")
			return nil
		},
	}
	return cmd
}

// renderReplies prints a Store snapshot as a table keyed by its mirror key,
// followed by the terminal sentinel every control-query reply stream closes
// with (spec.md §6).
func renderReplies(replies []ipc.Reply, fields ...string) {
	headers := make([]string, 0, len(fields)+1)
	headers = append(headers, "KEY")
	for _, f := range fields {
		headers = append(headers, f)
	}
	t := cli.NewTable(headers...)
	for _, r := range replies {
		row := make([]string, 0, len(fields)+1)
		row = append(row, r.Key)
		for _, f := range fields {
			v, ok := r.Fields[f]
			if !ok {
				v = "-"
			}
			row = append(row, colorizeField(v))
		}
		t.Row(row...)
	}
	t.Flush()
	fmt.Println(ipc.End)
}

// colorizeField highlights the "true"/"false" boolean fields ipc.Reply
// carries (valid, connected, up, nh_reachable, coupled, no_fib, ...) the
// way newtron's status commands color PASS/FAIL — everything else passes
// through unchanged.
func colorizeField(v string) string {
	switch v {
	case "true":
		return cli.Green(v)
	case "false":
		return cli.Red(v)
	default:
		return v
	}
}
