package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/ports"
	"github.com/spf13/cobra"
)

var thoughtsCmd = &cobra.Command{
	Use:   "thoughts [@user|all]",
	Short: "Chart what a user sometimes thinks about",
	Long: `Renders and publishes the chart of one user's thoughts, or of everyone's
with "all". With no argument the acting user is charted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runThoughts,
}

func runThoughts(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var art *ports.Artifact
	all := len(args) == 1 && strings.EqualFold(args[0], "all")
	if all {
		art, err = client.RenderAll(ctx)
	} else {
		author, rerr := resolveUser(args)
		if rerr != nil {
			return rerr
		}
		art, err = client.Render(ctx, author)
		if errors.Is(err, ports.ErrNoData) {
			fmt.Printf("No data available to plot for %s yet.\n", author)
			return nil
		}
	}
	switch {
	case errors.Is(err, ports.ErrNoData):
		fmt.Println("No data available for any users yet.")
		return nil
	case errors.Is(err, scan.ErrScanInProgress):
		fmt.Println("Rebuilding DB, please try again later.")
		return nil
	case err != nil:
		return err
	}

	fmt.Print(art.Body)
	if !strings.HasSuffix(art.Body, "\n") {
		fmt.Println()
	}
	fmt.Printf("%s→ %s%s\n", colorGray, art.Path, colorReset)
	return nil
}
