package main

import (
	"fmt"
	"os"
	"time"

	"cpd-go/internal/app"
	"cpd-go/internal/config"
	"cpd-go/internal/cpd"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CPDApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Stage", "Rollback").
func newApp(operation string) (*app.CPDApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewCPDApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// printReport writes per-entry results and returns an error when any entry failed.
func printReport(report *cpd.Report) error {
	for _, res := range report.Results {
		switch res.Status {
		case cpd.StatusFailed, cpd.StatusMismatch:
			fmt.Printf("FAILED  %s  (%s)\n", res.Entry, res.Detail)
		default:
			fmt.Printf("ok      %s  (%d file(s), %d bytes)\n", res.Entry, res.Files, res.Bytes)
		}
	}
	if report.Failed() {
		return fmt.Errorf("%d of %d entries failed", report.FailedCount(), len(report.Results))
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "cpd",
	Short: "CircuitPython device staging tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Bundle Root: %s\n", cfg.BundleRoot)
		fmt.Printf("Target Root: %s\n", cfg.TargetRoot)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("InitKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find mounted CircuitPython devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Detect")
		if err != nil {
			return err
		}
		defer a.Close()

		mounts, err := a.Detect()
		if err != nil {
			return err
		}

		if len(mounts) == 0 {
			fmt.Println("No devices found.")
			return nil
		}

		for _, m := range mounts {
			fmt.Printf("%s  %s\n", m.Path, m.BootInfo)
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the manifest without copying",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, _ := cmd.Flags().GetString("bundle")
		target, _ := cmd.Flags().GetString("target")

		a, err := newApp("Check")
		if err != nil {
			return err
		}
		defer a.Close()

		bundleRoot, targetRoot, err := a.ResolveRoots(bundle, target)
		if err != nil {
			return err
		}

		entries, err := a.Check(bundleRoot, targetRoot)
		if err != nil {
			return err
		}

		fmt.Printf("Bundle: %s\nTarget: %s\n\n", bundleRoot, targetRoot)
		for _, e := range entries {
			fmt.Printf("%-4s %s\n", e.Kind, e.Entry)
		}
		fmt.Printf("\n%d entries ready.\n", len(entries))
		return nil
	},
}

// stage command
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Copy the manifest to the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, _ := cmd.Flags().GetString("bundle")
		target, _ := cmd.Flags().GetString("target")
		noSnapshot, _ := cmd.Flags().GetBool("no-snapshot")

		a, err := newApp("Stage")
		if err != nil {
			return err
		}
		defer a.Close()

		bundleRoot, targetRoot, err := a.ResolveRoots(bundle, target)
		if err != nil {
			return err
		}

		report, err := a.Stage(bundleRoot, targetRoot, !noSnapshot)
		if err != nil {
			return fmt.Errorf("staging failed: %w", err)
		}

		return printReport(report)
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare device content against the bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, _ := cmd.Flags().GetString("bundle")
		target, _ := cmd.Flags().GetString("target")

		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		bundleRoot, targetRoot, err := a.ResolveRoots(bundle, target)
		if err != nil {
			return err
		}

		report, err := a.Verify(bundleRoot, targetRoot)
		if err != nil {
			return err
		}

		return printReport(report)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "View staging run history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			var runID int64
			if _, err := fmt.Sscanf(args[0], "%d", &runID); err != nil {
				return fmt.Errorf("invalid run ID: %s", args[0])
			}
			entries, err := a.RunEntries(runID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entries recorded for this run.")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%-8s  %s -> %s  %d file(s)  %d bytes",
					e.Status, e.Source, e.Destination, e.Files, e.Bytes)
				if e.Error != "" {
					line += "  " + e.Error
				}
				fmt.Println(line)
			}
			return nil
		}

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No staging runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %s\n",
				run.ID,
				run.Operation,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
			)
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage device snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetSnapshots")
		if err != nil {
			return err
		}
		defer a.Close()

		snapshots, err := a.Snapshots(limit)
		if err != nil {
			return err
		}

		if len(snapshots) == 0 {
			fmt.Println("No snapshots recorded.")
			return nil
		}

		for _, snap := range snapshots {
			enc := ""
			if snap.Encrypted {
				enc = "  [encrypted]"
			}
			fmt.Printf("%s  %s  %s%s\n",
				snap.ID,
				snap.CreatedAt.Format("2006-01-02 15:04:05"),
				snap.TargetRoot,
				enc,
			)
		}
		return nil
	},
}

// rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback [SNAPSHOT_ID]",
	Short: "Restore the device from a snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotID := ""
		if len(args) == 1 {
			snapshotID = args[0]
		}

		a, err := newApp("Rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		encrypted, err := a.SnapshotEncrypted(snapshotID)
		if err != nil {
			return err
		}

		passphrase := ""
		if encrypted {
			passphrase, err = readPassphrase("Passphrase for private key: ")
			if err != nil {
				return err
			}
		}

		restored, err := a.Rollback(snapshotID, passphrase)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		for _, path := range restored {
			fmt.Println(path)
		}
		fmt.Printf("Restored %d file(s)\n", len(restored))
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotListCmd.Flags().IntP("limit", "n", 20, "Maximum number of snapshots to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("bundle", "", "Bundle root directory")
	checkCmd.Flags().String("target", "", "Target root directory")
	rootCmd.AddCommand(stageCmd)
	stageCmd.Flags().String("bundle", "", "Bundle root directory")
	stageCmd.Flags().String("target", "", "Target root directory")
	stageCmd.Flags().Bool("no-snapshot", false, "Skip the pre-stage device snapshot")
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("bundle", "", "Bundle root directory")
	verifyCmd.Flags().String("target", "", "Target root directory")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(rollbackCmd)
}
