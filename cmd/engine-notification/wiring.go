package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rathix/workflow-engine/internal/config"
	"github.com/rathix/workflow-engine/internal/notifysvc"
	notifymemstore "github.com/rathix/workflow-engine/internal/notifysvc/memstore"
	notifypostgres "github.com/rathix/workflow-engine/internal/notifysvc/postgres"
	"github.com/rathix/workflow-engine/internal/outbound"
)

// cliDeps bundles the config and store an engine-notification subcommand
// needs, loaded once per invocation.
type cliDeps struct {
	cfg      *config.Config
	store    notifysvc.Store
	closeFn  func()
	executor *notifysvc.Executor
}

func loadCLIDeps(ctx context.Context, cmd *cobra.Command) (*cliDeps, error) {
	rulesPath, _ := cmd.Flags().GetString("rules")
	databaseURL, _ := cmd.Flags().GetString("database-url")

	if _, err := os.Stat(rulesPath); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", rulesPath, err)
	}
	ruleCfg, errs := config.Load(rulesPath)
	if ruleCfg == nil {
		return nil, fmt.Errorf("failed to load rule file %s: %v", rulesPath, errs)
	}
	config.ApplyEnv(ruleCfg)

	store, closeFn, err := openNotifyStore(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	endpoints := make(map[notifysvc.Channel]notifysvc.ChannelEndpoints, len(ruleCfg.Notifications.Channels))
	for name, cc := range ruleCfg.Notifications.Channels {
		endpoints[notifysvc.Channel(name)] = notifysvc.ChannelEndpoints{Single: cc.SingleURL, Batch: cc.BatchURL}
	}

	client := outbound.New(ruleCfg.Engine.WebhooksURL, ruleCfg.Engine.WebhooksAPIKey)
	executor := notifysvc.NewExecutor(store, notifysvc.PassthroughView{}, client, endpoints)

	return &cliDeps{cfg: ruleCfg, store: store, closeFn: closeFn, executor: executor}, nil
}

// openNotifyStore opens the postgres-backed notification store when dsn is
// set, otherwise falls back to the in-memory store for standalone/dev use.
func openNotifyStore(ctx context.Context, dsn string) (notifysvc.Store, func(), error) {
	if dsn == "" {
		return notifymemstore.New(), func() {}, nil
	}
	db, err := notifypostgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
