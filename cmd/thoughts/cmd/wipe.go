package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/corey/thoughts/internal/adapters/bbolt"
	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/app"
	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Clear every user's thoughts",
	Long:  "Deletes the whole ledger. Works with or without the daemon.",
	RunE:  runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "Skip confirmation prompt")
}

func runWipe(cmd *cobra.Command, args []string) error {
	root := projectRoot()

	if !wipeForce {
		fmt.Print("⚠ This will delete every recorded thought. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	client := socket.NewClient(socket.SocketPath(root))

	// If daemon is running, wipe via socket
	if client.Ping() {
		if err := client.Wipe(); err != nil {
			if errors.Is(err, scan.ErrScanInProgress) {
				return fmt.Errorf("rebuilding DB, please try again later")
			}
			return err
		}
		fmt.Println("⚡ ledger wiped (daemon)")
		return nil
	}

	paths := app.NewPaths(root)
	if _, err := os.Stat(paths.DB); os.IsNotExist(err) {
		fmt.Println("⚡ no data to wipe")
		return nil
	}

	store, err := bbolt.NewStore(paths.DB, logger.Named("store"))
	if err != nil {
		if isDBLockError(err) {
			return errors.New(diagnoseDBLock(root))
		}
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.Wipe(); err != nil {
		return err
	}
	fmt.Println("⚡ ledger wiped")
	return nil
}
