// Animus daemon: opens the store, wires the heartbeat loop, and serves
// the control API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-hq/animus/internal/actions"
	"github.com/animus-hq/animus/internal/api"
	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/config"
	"github.com/animus-hq/animus/internal/drives"
	"github.com/animus-hq/animus/internal/embeddings"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/heartbeat"
	"github.com/animus-hq/animus/internal/identity"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/maintenance"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/vectors"
)

var (
	configPath string
	dataDir    string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "animusd",
		Short: "Animus daemon - the agent's heartbeat and control API",
		RunE:  runDaemon,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	fmt.Println("Starting Animus daemon...")

	dbPath := filepath.Join(cfg.DataDir, "animus.db")
	db, err := storage.Open(storage.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Singleton rows and the five drives exist before anything ticks.
	states := storage.NewStateStore(db)
	if err := states.InitHeartbeat(cfg.Heartbeat.MaxEnergy); err != nil {
		return err
	}
	driveStore := storage.NewDriveStore(db)
	if err := driveStore.Seed(nil); err != nil {
		return err
	}

	// The identity signs outbound messages. The daemon runs unsigned when
	// no identity exists or the passphrase is not supplied.
	identityMgr := identity.NewManager(storage.NewIdentityStore(db))
	var signer heartbeat.Signer
	if pass := os.Getenv("ANIMUS_PASSPHRASE"); pass != "" {
		if err := identityMgr.Unlock(pass); err != nil {
			fmt.Printf("Identity unlock failed: %v\n", err)
		} else {
			fmt.Printf("Identity unlocked (%s)\n", identityMgr.Fingerprint())
			signer = identityMgr
		}
	} else {
		fmt.Println("ANIMUS_PASSPHRASE not set - outbox messages will be unsigned")
	}

	// Vector search degrades to sqlite-only recall when Qdrant is down.
	var index memory.VectorIndex
	vectorStore, err := vectors.NewStore(vectors.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		fmt.Printf("Qdrant not available: %v\n", err)
	} else {
		defer vectorStore.Close()
		index = vectorStore
		fmt.Println("Qdrant connected")
	}

	embedder := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Ollama.URL,
		Model:   cfg.Ollama.Model,
	})
	if err := embedder.Health(context.Background()); err != nil {
		fmt.Printf("Ollama not available: %v\n", err)
	} else {
		fmt.Println("Ollama connected")
		if vectorStore != nil {
			vectorStore.EnsureCollections(context.Background(), embedder.Dimension())
		}
	}

	settings := storage.NewSettingsStore(db)
	goalStore := storage.NewGoalStore(db)
	beliefStore := storage.NewBeliefStore(db)
	memoryStore := storage.NewMemoryStore(db)
	graphStore := graph.NewStore(db)
	audit := ledger.NewStore(db.Conn())
	lockReg := locks.NewRegistry()

	memories := memory.NewService(memoryStore, graphStore, embedder, index, lockReg)
	driveEng := drives.NewEngine(driveStore)
	goalEng := goals.NewEngine(goalStore, audit, cfg.Heartbeat.MaxActiveGoals)
	gate := beliefs.NewGate(beliefStore, goalStore, memoryStore, settings, memories, embedder, index, audit)
	guard := beliefs.NewGuard(beliefStore, embedder, index)

	controller := heartbeat.NewController(states, memories, goalEng, graphStore, beliefStore, signer, audit)
	dispatcher, err := actions.NewDispatcher(states, settings, driveEng, goalEng, gate, guard,
		memories, graphStore, audit, controller, cfg.Heartbeat.TokenBudget)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	hbCfg := heartbeat.Config{
		Interval:    cfg.Heartbeat.Interval,
		BaseRegen:   cfg.Heartbeat.BaseRegen,
		TokenBudget: cfg.Heartbeat.TokenBudget,
	}
	scheduler := heartbeat.NewScheduler(states, driveEng, goalEng, memories, gate, audit, hbCfg)
	manager := heartbeat.NewManager(states, dispatcher, goalEng, memories, graphStore, gate, controller, audit, hbCfg)

	mtCfg := maintenance.DefaultConfig()
	mtCfg.Interval = cfg.Maintenance.Interval
	mtCfg.DecayHalfLife = cfg.Maintenance.DecayHalfLife
	mtCfg.MoodAlpha = cfg.Maintenance.MoodBlendAlpha
	runner := maintenance.NewRunner(states, memories, gate, lockReg, mtCfg)

	server := api.New(api.Config{
		Port:        cfg.Server.Port,
		Scheduler:   scheduler,
		Manager:     manager,
		Dispatcher:  dispatcher,
		Maintenance: runner,
		States:      states,
		Memories:    memories,
		Goals:       goalEng,
		Drives:      driveEng,
		Audit:       audit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The tick loop opens epochs when due and pushes the decision call to
	// connected clients. A decider answers over the HTTP surface.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				due, err := scheduler.ShouldRun()
				if err == nil && due {
					if call, err := scheduler.Start(ctx); err == nil {
						server.Broadcast("external_call", call)
					}
				}
				if report, err := runner.RunIfDue(ctx); err == nil && report.Ran {
					server.Broadcast("maintenance_report", report)
				}
			}
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Stop(shutdownCtx)
	}()

	fmt.Printf("Control API on http://localhost:%d\n", cfg.Server.Port)
	return server.Start()
}
