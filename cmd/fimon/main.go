package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fimon/internal/app"
	"fimon/internal/config"
	"fimon/internal/fim"
	"fimon/internal/report"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is stamped into baseline records and overridden at build time
// via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Export").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, operation, version)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "fimon",
	Short: "File integrity monitor",
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

		a, err := newApp(cmd, "ConfigList")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Configuration from %s:\n\n%s", defaults["config_path"], a.Describe())
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one integrity scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.RunScan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Scanned %d file(s): %d changed, %d new, %d deleted, %d error(s)\n",
			summary.TotalFiles, summary.ChangedCount, summary.NewCount,
			summary.DeletedCount, summary.ErrorCount)
		fmt.Printf("Overall: %s\n", summary.OverallStatus())
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan continuously on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Watching. Press Ctrl-C to stop.")
		if err := a.Watch(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the current baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Status()
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("Baseline is empty. Run 'fimon scan' first.")
			return nil
		}

		for i := range records {
			r := &records[i]
			marker := " "
			if !r.SignatureValid {
				marker = "!"
			}
			fmt.Printf("%s %-8s %s  %s\n",
				marker,
				r.Status,
				report.PermissionsString(r),
				r.Path,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the scan history log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No history recorded.")
			return nil
		}

		for _, e := range events {
			old := "-"
			if e.OldStatus != fim.HistoryStatusNone {
				old = fim.FileStatus(e.OldStatus).String()
			}
			fmt.Printf("%s  %-8s -> %-8s  %s  %s\n",
				e.ScanTime.Local().Format("2006-01-02 15:04:05"),
				old,
				fim.FileStatus(e.NewStatus),
				e.FilePath,
				e.Comment,
			)
		}
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the baseline as a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		output, _ := cmd.Flags().GetString("output")

		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Export")
		if err != nil {
			return err
		}
		defer a.Close()

		w := os.Stdout
		if output != "" {
			f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := a.Export(w, format, encrypt); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if output != "" {
			fmt.Printf("Report written to %s\n", output)
		}
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt an encrypted report to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readDecryptPassphrase()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Decrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening encrypted report: %w", err)
		}
		defer f.Close()

		return a.Decrypt(f, os.Stdout, passphrase)
	},
}

// baseline command
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage the baseline database",
}

var baselineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the baseline and history",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Print("This deletes the baseline and the full history. Continue? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd, "ClearBaseline")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearBaseline(); err != nil {
			return fmt.Errorf("clearing baseline: %w", err)
		}
		fmt.Println("Baseline cleared. The next scan records every file as New.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage database snapshots",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database snapshot to the configured vaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BackupDB")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDB(cmd.Context()); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Println("Snapshot uploaded.")
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local database with the vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RestoreDB")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreDB(cmd.Context()); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Println("Database restored from vault.")
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption and signature keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the report encryption key pair and the row signature key",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "KeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.KeysInit(passphrase); err != nil {
			return err
		}
		fmt.Println("Keys generated. Re-scan to sign existing baseline rows.")
		return nil
	},
}

// readDecryptPassphrase prompts once on the terminal without echo.
func readDecryptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Print("Passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

// readPassphrase prompts twice on the terminal without echo. A non-terminal
// stdin (e.g. a pipe in tests or scripts) falls back to an empty passphrase.
func readPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Print("Passphrase for the private key: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	fmt.Print("Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// baseline subcommands
	baselineCmd.AddCommand(baselineClearCmd)
	baselineClearCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbRestoreCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show")
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("format", "f", "csv", "Report format: csv or json")
	exportCmd.Flags().BoolP("encrypt", "e", false, "Encrypt the report with the configured public key")
	exportCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(keysCmd)
}
