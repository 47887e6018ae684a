// Package app wires configuration, logging, storage, and the coordinator
// into a running server process.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"rust-and-ruin/server/internal/config"
	"rust-and-ruin/server/internal/coordinator"
	servernet "rust-and-ruin/server/internal/net"
	"rust-and-ruin/server/internal/storage"
	"rust-and-ruin/server/logging"
	loggingSinks "rust-and-ruin/server/logging/sinks"
)

// Run boots one world shard and serves it until the HTTP server fails.
func Run(ctx context.Context) error {
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	tables, err := config.LoadTables(env.TablesPath)
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig()
	named := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if env.LogJSONPath != "" {
		file, err := os.OpenFile(env.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log: %w", err)
		}
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSONSink(file, logConfig.JSON.FlushInterval),
		})
	}
	router, err := logging.NewRouter(nil, logConfig, named)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			log.Printf("failed to close logging router: %v", cerr)
		}
	}()

	store, err := storage.OpenSQLite(env.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	coord := coordinator.New(coordinator.Config{
		Store:  store,
		Logger: router,
		Tables: tables,
		Seed:   env.WorldSeed,
		Oracle: coordinator.OracleFunc(starterVehicles),
	})

	stop := make(chan struct{})
	defer close(stop)
	go coord.RunManagementLoop(stop, env.CyclePeriod)
	go runSessionPruner(stop, coord, env.PrunePeriod, env.SessionMaxAge)

	handler := servernet.NewHTTPHandler(coord, servernet.HTTPHandlerConfig{Logger: log.Default()})
	srv := &http.Server{Addr: env.Addr, Handler: handler}
	log.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// starterVehicles is the built-in ownership oracle: every account controls a
// fixed starter pair. A garage service can be swapped in through
// coordinator.Config.Oracle.
func starterVehicles(ctx context.Context, accountID string) ([]string, error) {
	return []string{accountID + "-hauler", accountID + "-rover"}, nil
}

// runSessionPruner evicts sessions with no recent heartbeat. Connections are
// not self-terminating; this loop is the external cleanup the registry
// expects.
func runSessionPruner(stop <-chan struct{}, coord *coordinator.Coordinator, period, maxAge time.Duration) {
	if period <= 0 {
		period = 30 * time.Second
	}
	if maxAge <= 0 {
		maxAge = 90 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			coord.PruneStaleSessions(maxAge)
		}
	}
}
