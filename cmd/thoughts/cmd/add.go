package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add @user <phrase...>",
	Short: "Record one occurrence of a thought by hand",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	author, err := resolveUser(args[:1])
	if err != nil {
		return err
	}
	phrase := strings.TrimSpace(strings.Join(args[1:], " "))
	client, err := daemonClient()
	if err != nil {
		return err
	}
	count, err := client.Add(context.Background(), author, phrase)
	if errors.Is(err, scan.ErrScanInProgress) {
		fmt.Println("Rebuilding DB, please try again later.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Added one occurrence of %s for %s (%d total).\n", phrase, author, count)
	return nil
}
