package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/corey/thoughts/internal/adapters/tui"
	"github.com/corey/thoughts/internal/domain/workflow"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [@user]",
	Short: "Pick a thought and remove one occurrence of it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(workflow.ActionRemove, args)
	},
}

var replaceCmd = &cobra.Command{
	Use:   "replace [@user]",
	Short: "Pick a thought and rename it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(workflow.ActionReplace, args)
	},
}

// runMenu opens the interactive menu over a snapshot of the user's ledger.
// Mutations and republishing go through the daemon.
func runMenu(action workflow.Action, args []string) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	author, err := resolveUser(args)
	if err != nil {
		return err
	}
	client, err := daemonClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	snap, err := client.Snapshot(ctx, author)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	owner := actingUser()
	session := workflow.New(workflow.Config{
		Owner:     owner,
		Author:    author,
		Action:    action,
		Snapshot:  snap.Entries,
		Mutator:   client,
		Publisher: client,
		Logger:    logger.Named("menu"),
		Timeout:   settings.SessionTimeout,
	})
	err = tui.Run(ctx, session, owner, snap.Name)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
