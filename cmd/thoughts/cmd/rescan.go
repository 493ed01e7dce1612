package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan [@user]",
	Short: "Rebuild a user's thoughts from the message history",
	Long: `Discards the user's ledger and rebuilds it from every partition of the
corpus. Only one scan runs at a time; live messages are dropped while it runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRescan,
}

func runRescan(cmd *cobra.Command, args []string) error {
	author, err := resolveUser(args)
	if err != nil {
		return err
	}
	client, err := daemonClient()
	if err != nil {
		return err
	}

	fmt.Printf("Rebuilding database for %s...\n", author)
	res, err := client.Rescan(context.Background(), author)
	if errors.Is(err, scan.ErrScanInProgress) {
		fmt.Println("A scan is already in progress, please try again later.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, formatRescan(res))
	return nil
}
