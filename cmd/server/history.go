package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/adi-253/parley/backend/internal/config"
	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/services"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// historyOptions holds flags for the history command.
type historyOptions struct {
	Limit  int
	Format string // "json" | "text"
}

func newHistoryCommand() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent chat messages",
		Long: `Read the configured history store and print the most recent
messages, oldest first.

Examples:
  parley history
  parley history --limit 50
  parley history --format json`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be one of [text json]", opts.Format)
			}
			if opts.Limit < 1 {
				return fmt.Errorf("limit must be positive, got %d", opts.Limit)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of messages to print")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	return cmd
}

func runHistory(ctx context.Context, opts *historyOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	messageStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	history := services.NewHistoryService(messageStore, log, cfg.HistoryLimit, cfg.PersistenceTimeout, models.Message{})
	messages, err := history.FetchRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return printHistory(out, opts.Format, messages)
}

// printHistory renders messages as a table or as the polling endpoint's JSON.
func printHistory(out io.Writer, format string, messages []models.Message) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(models.GetMessagesResponse{
			Messages: services.Payloads(messages),
			Order:    models.OrderAscending,
		})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Timestamp", "Sender", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, msg := range messages {
		table.Append([]string{
			msg.Timestamp.Local().Format(time.DateTime),
			msg.Sender,
			msg.Body,
		})
	}
	table.Render()
	return nil
}
