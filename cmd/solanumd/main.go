// Command solanumd is the process entry point for the connection-and-
// access core: load configuration, bring up the IRC listener, the mesh
// peering transport, ban persistence, and the metrics/health surface,
// then wait for a termination signal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/solanum-irc/solanum/ircd"
	"github.com/solanum-irc/solanum/ircd/bandb"
	"github.com/solanum-irc/solanum/ircd/config"
	"github.com/solanum-irc/solanum/ircd/metrics"
	"github.com/solanum-irc/solanum/ircd/peering"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the server's TOML or YAML configuration file")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("solanumd: failed to load configuration: %v", err)
	}

	srv := ircd.NewServer(cfg.ToIRCDConfig(), logger)
	srv.Opers = ircd.NewOperRegistry(cfg.OperBlocks())

	if cfg.OIDC.IssuerURL != "" {
		if err := srv.Opers.ConfigureOIDC(context.Background(), cfg.OIDC.IssuerURL, cfg.OIDC.ClientID); err != nil {
			logger.Fatalf("solanumd: failed to configure OIDC: %v", err)
		}
	}

	var store *bandb.Store
	if cfg.BanDB.DSN != "" {
		store, err = bandb.Open(cfg.BanDB.DSN)
		if err != nil {
			logger.Fatalf("solanumd: failed to open ban database: %v", err)
		}

		records, err := store.LoadAll()
		if err != nil {
			logger.Fatalf("solanumd: failed to load persisted bans: %v", err)
		}
		for _, rec := range records {
			srv.Address.Insert(rec)
		}
		logger.Printf("solanumd: loaded %d persisted access-control records", len(records))

		store.RegisterPersistence(srv)
	}

	mesh := peering.NewManager(srv)
	mesh.Register()
	if cfg.Peering.ListenAddr != "" {
		if err := mesh.StartGRPCServer(cfg.Peering.ListenAddr); err != nil {
			logger.Fatalf("solanumd: failed to start peering server: %v", err)
		}
	}
	if len(cfg.Peering.Peers) > 0 {
		mesh.ConnectToPeers(cfg.Peering.Peers)
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv = metrics.New(srv.Stats)
		go func() {
			if err := metricsSrv.ListenAndServe(cfg.Metrics.ListenAddr); err != nil {
				logger.Printf("solanumd: metrics server exited: %v", err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatalf("solanumd: server failed: %v", err)
		}
	}()

	logger.Printf("solanumd: %s listening on %s", cfg.Server.Name, cfg.Server.ListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Printf("solanumd: shutting down")

	srv.Shutdown()
	mesh.StopGRPCServer()
	if metricsSrv != nil {
		metricsSrv.Close()
	}
	if store != nil {
		store.Close()
	}
}
