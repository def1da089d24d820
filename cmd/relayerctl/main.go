// Command relayerctl is an operator tool for the Relayer: it can apply the
// database schema, trigger an out-of-band sync, and inspect the
// finalization queue without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidebet/relayer/core"
	"github.com/sidebet/relayer/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "relayerctl", Short: "operator CLI for the Sidebet relayer"}
	root.AddCommand(migrateCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(queueCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connectStore(ctx context.Context) (*core.PgStore, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := core.NewPgStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply the relayer's database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, _, err := connectStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("schema applied")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var all bool
	var discover bool
	cmd := &cobra.Command{
		Use:   "sync [market]",
		Short: "trigger a one-shot sync of one market, all known markets, or discover new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, cfg, err := connectStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			chain, err := core.NewChainGateway(ctx, cfg.RPCURL, cfg.RelayerPrivateKey, cfg.ChainID, cfg.ChainReadTimeout, cfg.ChainFinalizeTimeout)
			if err != nil {
				return err
			}
			log, _ := zap.NewProduction()
			defer log.Sync()
			sync := core.NewSyncService(store, chain, cfg.FactoryAddress, log.Sugar())

			switch {
			case discover:
				n, err := sync.DiscoverNewMarkets(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("discovered %d new market(s)\n", n)
			case all:
				synced, failed := sync.SyncAll(ctx)
				fmt.Printf("synced %d market(s), %d failed\n", synced, failed)
			case len(args) == 1:
				if err := sync.SyncMarket(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("synced %s\n", args[0])
			default:
				return fmt.Errorf("specify a market address, or pass --all / --discover")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "sync every known market")
	cmd.Flags().BoolVar(&discover, "discover", false, "discover new markets from the factory")
	return cmd
}

func queueCmd() *cobra.Command {
	var pendingOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "list entries on the finalization queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, _, err := connectStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.ListFinalizationQueue(ctx, pendingOnly, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, e := range entries {
				status := "pending"
				switch {
				case e.Completed():
					status = "completed"
				case e.ThresholdMet:
					status = "threshold_met"
				}
				fmt.Printf("%-42s status=%-13s signatures=%d/%d attempts=%d\n", e.Market, status, e.SignatureCount, e.EligibleCount, e.Attempts)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending-only", false, "only show entries still awaiting finalization")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to print")
	return cmd
}
