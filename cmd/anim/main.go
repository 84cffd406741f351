// Animus CLI: first-boot setup and local status checks against the
// daemon's database.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/animus-hq/animus/internal/config"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/identity"
	"github.com/animus-hq/animus/internal/storage"
)

var (
	dataDir string

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "anim",
		Short: "Animus - control an autonomous agent's heartbeat",
	}

	cfg := config.Default()
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir, "data directory")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(maintainCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dbPath() string {
	return filepath.Join(dataDir, "animus.db")
}

// initCmd provisions the database, seeds the drives, and creates the
// signing identity. After this the daemon can open epochs.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the agent: database, drives, and signing identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath()); err == nil {
				fmt.Println("Already initialized.")
				fmt.Printf("Data directory: %s\n", dataDir)
				return nil
			}

			fmt.Print("Create a passphrase (min 8 chars): ")
			pass1, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("failed to read passphrase: %w", err)
			}
			fmt.Println()
			if len(pass1) < 8 {
				return fmt.Errorf("passphrase must be at least 8 characters")
			}

			fmt.Print("Confirm passphrase: ")
			pass2, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("failed to read passphrase: %w", err)
			}
			fmt.Println()
			if string(pass1) != string(pass2) {
				return fmt.Errorf("passphrases don't match")
			}

			if err := os.MkdirAll(dataDir, 0700); err != nil {
				return err
			}
			db, err := storage.Open(storage.Config{Path: dbPath()})
			if err != nil {
				return fmt.Errorf("failed to create database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			cfg := config.Default()
			states := storage.NewStateStore(db)
			if err := states.InitHeartbeat(cfg.Heartbeat.MaxEnergy); err != nil {
				return err
			}
			if err := storage.NewDriveStore(db).Seed(nil); err != nil {
				return err
			}

			fmt.Println("Generating keys (ed25519, ML-DSA-65, ML-KEM-768)...")
			mgr := identity.NewManager(storage.NewIdentityStore(db))
			if err := mgr.Create(string(pass1)); err != nil {
				return fmt.Errorf("failed to create identity: %w", err)
			}

			st, err := states.LoadHeartbeat()
			if err != nil {
				return err
			}
			st.InitStage = core.InitStageComplete
			if err := states.SaveHeartbeat(st); err != nil {
				return err
			}

			fmt.Println("\nInitialized.")
			fmt.Printf("Identity fingerprint: %s\n", mgr.Fingerprint())
			fmt.Printf("Data directory: %s\n", dataDir)
			fmt.Println("\nStart the daemon with: animusd")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath()); os.IsNotExist(err) {
				fmt.Println("Not initialized. Run 'anim init' to get started.")
				return nil
			}

			db, err := storage.Open(storage.Config{Path: dbPath()})
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := storage.NewStateStore(db).LoadHeartbeat()
			if err != nil {
				return err
			}

			state := "alive"
			switch {
			case st.Terminated:
				state = "terminated"
			case st.IsPaused:
				state = "paused"
			}

			fmt.Printf("State:      %s\n", state)
			fmt.Printf("Heartbeats: %d\n", st.HeartbeatCount)
			fmt.Printf("Energy:     %.1f / %.1f\n", st.CurrentEnergy, st.MaxEnergy)
			if st.ActiveEpochID != "" {
				fmt.Printf("Epoch:      %s (in flight)\n", st.ActiveEpochID)
			}
			if st.LastRunAt != nil {
				fmt.Printf("Last run:   %s\n", st.LastRunAt.Format("2006-01-02 15:04:05"))
			}

			var memories, goals int
			db.Conn().QueryRow("SELECT COUNT(*) FROM memories").Scan(&memories)
			db.Conn().QueryRow("SELECT COUNT(*) FROM goals WHERE priority NOT IN ('completed', 'abandoned')").Scan(&goals)
			fmt.Printf("Memories:   %d\n", memories)
			fmt.Printf("Open goals: %d\n", goals)
			return nil
		},
	}
}

// post hits the running daemon and prints the response body.
func post(daemonURL, path string) error {
	resp, err := http.Post(daemonURL+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}
	fmt.Println(string(body))
	return nil
}

func runCmd() *cobra.Command {
	var daemonURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask the daemon to open a heartbeat epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/heartbeat/run"
			if force {
				path += "?force=true"
			}
			return post(daemonURL, path)
		},
	}
	cmd.Flags().StringVar(&daemonURL, "daemon", "http://localhost:8080", "daemon base URL")
	cmd.Flags().BoolVar(&force, "force", false, "run even if the interval has not elapsed")
	return cmd
}

func maintainCmd() *cobra.Command {
	var daemonURL string
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Ask the daemon to run a maintenance pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(daemonURL, "/api/v1/maintenance/run")
		},
	}
	cmd.Flags().StringVar(&daemonURL, "daemon", "http://localhost:8080", "daemon base URL")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("anim %s\n", version)
		},
	}
}
