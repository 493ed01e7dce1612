package cmd

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/app"
	"github.com/corey/thoughts/internal/ports"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvUser names the acting user for interactive menus.
const EnvUser = "THOUGHTS_USER"

var (
	rootDir    string
	configPath string
	verbose    bool
	actor      string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "thoughts",
	Short: "A ledger of what people sometimes think about",
	Long: `Watches chat messages for "sometimes I think (a lot) about X", keeps a
per-user count of every X, and charts the results.

A daemon owns the ledger. Start it with "thoughts daemon start"; every other
command talks to it over a local socket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(cmd.CommandPath() == "thoughts daemon start")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// newLogger builds the CLI logger. Commands log warnings to stderr; the
// daemon logs at info and also appends to .thoughts/log/daemon.log.
func newLogger(daemon bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if daemon {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		paths := app.NewPaths(projectRoot())
		if err := os.MkdirAll(paths.LogDir, 0o755); err == nil {
			config.OutputPaths = append(config.OutputPaths, paths.DaemonLog)
		}
	}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// projectRoot returns --root, or the cwd by default.
func projectRoot() string {
	if rootDir != "" {
		abs, err := filepath.Abs(rootDir)
		if err == nil {
			return abs
		}
		return rootDir
	}
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return dir
}

// loadSettings reads the effective configuration without the daemon.
func loadSettings() (app.Settings, *app.Paths, error) {
	root := projectRoot()
	paths := app.NewPaths(root)
	path := configPath
	if path == "" {
		path = paths.Config
	}
	s, err := app.LoadSettings(path, root, paths)
	return s, paths, err
}

// daemonClient returns a client for a running daemon.
func daemonClient() (*socket.Client, error) {
	client := socket.NewClient(socket.SocketPath(projectRoot()))
	if !client.Ping() {
		return nil, errDaemonNotRunning
	}
	return client, nil
}

// actingUser is --as, then $THOUGHTS_USER, then the OS user name.
func actingUser() string {
	if actor != "" {
		return actor
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// resolveUser turns a user argument into an AuthorID. With no argument the
// acting user is used, which then has to be an id or a configured name.
func resolveUser(args []string) (ports.AuthorID, error) {
	s, _, err := loadSettings()
	if err != nil {
		return "", err
	}
	ref := actingUser()
	if len(args) > 0 {
		ref = args[0]
	}
	if ref == "" {
		return "", fmt.Errorf("no user given and no acting user (use --as or $%s)", EnvUser)
	}
	return s.ResolveAuthor(ref)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root holding .thoughts/ (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <root>/.thoughts/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&actor, "as", os.Getenv(EnvUser), "Acting user for interactive menus")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(thoughtsCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(wipeCmd)
}
