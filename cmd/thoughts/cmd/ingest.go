package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/corey/thoughts/internal/ports"
	"github.com/spf13/cobra"
)

var (
	ingestAuthor string
	ingestName   string
	ingestBot    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest --author <id> <text...>",
	Short: "Deliver one message to the daemon as if it arrived live",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "Author id of the message")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "Author display name")
	ingestCmd.Flags().BoolVar(&ingestBot, "bot", false, "Mark the author as a bot")
	_ = ingestCmd.MarkFlagRequired("author")
}

func runIngest(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	msg := ports.Message{
		AuthorID:   ports.AuthorID(ingestAuthor),
		AuthorName: ingestName,
		Text:       strings.Join(args, " "),
		Bot:        ingestBot,
	}
	res, err := client.Ingest(context.Background(), msg)
	if err != nil {
		return err
	}
	fmt.Println(formatIngest(res))
	return nil
}
