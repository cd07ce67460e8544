package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // profiling endpoints on the ops listener
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/solidb/pkg/cluster"
	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/transport"
	"github.com/cuemby/solidb/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "solidbd",
	Short: "solidbd - the SoliDB document database daemon",
	Long: `solidbd serves SoliDB's HTTP, binary-protocol, and change-feed
network edge on a single TCP port, backed by a local storage engine and
an optional Raft-coordinated shard table for multi-node deployments.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"solidbd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// envOr returns the environment variable's value, or fallback if unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SoliDB daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		addr, _ := cmd.Flags().GetString("addr")
		opsAddr, _ := cmd.Flags().GetString("ops-addr")
		adminPassword, _ := cmd.Flags().GetString("admin-password")
		jwtSecret, _ := cmd.Flags().GetString("jwt-secret")
		clusterEnabled, _ := cmd.Flags().GetBool("cluster")
		raftAddr, _ := cmd.Flags().GetString("raft-addr")
		raftBootstrap, _ := cmd.Flags().GetBool("raft-bootstrap")
		enablePprof, _ := cmd.Flags().GetBool("enable-pprof")

		if adminPassword == "" {
			return fmt.Errorf("--admin-password (or SOLIDB_ADMIN_PASSWORD) is required")
		}

		logger := log.WithComponent("solidbd")
		logger.Info().Str("node_id", nodeID).Str("data_dir", dataDir).Msg("starting solidbd")

		engine, err := storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		catalog := storage.NewCatalog(engine)

		if err := bootstrapSystemDatabase(catalog); err != nil {
			return fmt.Errorf("bootstrap system database: %w", err)
		}
		metrics.RegisterComponent("storage", true, "ready")

		var shardTables *cluster.ShardTables
		var membership *cluster.Membership
		var coordinator *cluster.Coordinator
		stopHealthMonitor := make(chan struct{})

		if clusterEnabled {
			shardTables = cluster.NewShardTables(engine)
			coordinator = cluster.NewCoordinator(nodeID, raftAddr, dataDir, shardTables)
			if raftBootstrap {
				if err := coordinator.Bootstrap(); err != nil {
					return fmt.Errorf("bootstrap raft cluster: %w", err)
				}
			} else {
				if err := coordinator.Join(); err != nil {
					return fmt.Errorf("join raft cluster: %w", err)
				}
			}
			membership = cluster.NewMembership(nodeID, raftAddr, addr, time.Now())
			membership.StartHealthMonitor(stopHealthMonitor, 5*time.Second, time.Now)
			metrics.RegisterComponent("cluster", true, "bootstrapped")
			logger.Info().Str("raft_addr", raftAddr).Bool("bootstrap", raftBootstrap).Msg("cluster mode enabled")
		} else {
			metrics.RegisterComponent("cluster", true, "single-node")
		}

		var isLeader func() bool
		if coordinator != nil {
			isLeader = coordinator.IsLeader
		}
		collector := metrics.NewCollector(catalog, membership, shardTables, isLeader)
		collector.Start()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("transport", false, "initializing")

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if enablePprof {
				mux.Handle("/debug/pprof/", http.DefaultServeMux)
			}
			logger.Info().Str("addr", opsAddr).Msg("ops endpoint listening")
			if err := http.ListenAndServe(opsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("ops server error")
			}
		}()

		srv, err := transport.NewServer(transport.Config{
			Engine:        engine,
			Catalog:       catalog,
			NodeID:        nodeID,
			AdminPassword: adminPassword,
			JWTSecret:     jwtSecret,
			ShardTables:   shardTables,
			Membership:    membership,
		})
		if err != nil {
			return fmt.Errorf("create transport server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Listen(addr); err != nil {
				errCh <- fmt.Errorf("transport listen: %w", err)
			}
		}()
		time.Sleep(100 * time.Millisecond)
		metrics.RegisterComponent("transport", true, "ready")
		logger.Info().Str("addr", addr).Msg("solidbd ready")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("fatal error")
		}

		close(stopHealthMonitor)
		collector.Stop()
		if coordinator != nil {
			if err := coordinator.Shutdown(); err != nil {
				logger.Warn().Err(err).Msg("coordinator shutdown error")
			}
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

// bootstrapSystemDatabase ensures _system and its administrative
// collections exist before anything tries to write to them --
// pkg/transport's slow-query capture and the admin-only routes assume
// _system/_slow_queries etc. are always present rather than lazily
// creating them on first write.
func bootstrapSystemDatabase(catalog *storage.Catalog) error {
	if _, err := catalog.GetDatabase(types.SystemDatabase); err != nil {
		if _, err := catalog.CreateDatabase(types.SystemDatabase); err != nil {
			return err
		}
	}
	for _, name := range []string{
		types.SystemUsers,
		types.SystemServices,
		types.SystemScripts,
		types.SystemSlowQueries,
		types.SystemViews,
	} {
		if _, err := catalog.GetCollection(types.SystemDatabase, name); err != nil {
			col := &types.Collection{Name: name, Kind: types.CollectionDocument}
			if err := catalog.CreateCollection(types.SystemDatabase, col); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	serveCmd.Flags().String("node-id", envOr("SOLIDB_NODE_ID", "node-1"), "Unique node ID")
	serveCmd.Flags().String("data-dir", envOr("SOLIDB_DATA_DIR", "./solidb-data"), "Data directory")
	serveCmd.Flags().String("addr", "0.0.0.0:"+envOr("SOLIDB_PORT", "8529"), "Client-facing listen address (HTTP + binary protocol)")
	serveCmd.Flags().String("ops-addr", "127.0.0.1:9090", "Metrics/health ops listen address")
	serveCmd.Flags().String("admin-password", envOr("SOLIDB_ADMIN_PASSWORD", ""), "Admin account password")
	serveCmd.Flags().String("jwt-secret", envOr("SOLIDB_JWT_SECRET", "dev-secret-change-me"), "HMAC secret for signing auth tokens")
	serveCmd.Flags().Bool("cluster", false, "Enable Raft-coordinated cluster mode")
	serveCmd.Flags().String("raft-addr", "127.0.0.1:7946", "Raft bind address")
	serveCmd.Flags().Bool("raft-bootstrap", false, "Bootstrap a new single-node raft cluster (first node only)")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the ops listener")
}
