package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/app"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the thoughts daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Long:  "Opens the ledger, tails the inbox, and serves the socket and dashboard until interrupted or stopped.",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	sockPath := socket.SocketPath(root)

	// Check if already running
	client := socket.NewClient(sockPath)
	if client.Ping() {
		fmt.Println("⚡ daemon already running")
		return nil
	}

	a, err := app.New(app.Config{ProjectRoot: root, ConfigPath: configPath, Logger: logger})
	if err != nil {
		if isDBLockError(err) {
			return fmt.Errorf("%s", diagnoseDBLock(root))
		}
		return fmt.Errorf("init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("⚡ thoughts daemon starting at %s\n", sockPath)
	if err := a.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "⚡ daemon stopped")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(socket.SocketPath(projectRoot()))

	if !client.Ping() {
		fmt.Println("⚡ daemon is not running")
		return nil
	}

	if err := client.Shutdown(); err != nil {
		return err
	}

	fmt.Println("⚡ daemon stopped")
	return nil
}
