package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/bluerial/internal/device"
	"github.com/nerrad567/bluerial/internal/presence"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show recorded presence events for a device",
		Long: `The key is a device address in any separator style, or a stable id
when the service runs with stable_id keying. Entries are newest first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), root.resolveConfigPath(), args[0], limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show (at most 200)")
	return cmd
}

func runHistory(ctx context.Context, configPath, key string, limit int, out io.Writer) error {
	db, err := openDatabase(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only CLI session

	entries, err := device.NewSQLiteSightingRepository(db.DB).History(ctx, historyKey(key), limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	return printHistory(out, entries)
}

// historyKey renders an address argument the way keys are stored. Anything
// that is not a full address is taken as a stable id, case preserved.
func historyKey(arg string) string {
	arg = strings.TrimSpace(arg)
	digits := strings.NewReplacer(":", "", "-", "", " ", "").Replace(arg)
	if len(digits) == 12 {
		if addr, err := presence.ParseAddress(digits); err == nil && addr != 0 {
			return presence.FormatAddress(addr)
		}
	}
	return arg
}

func printHistory(out io.Writer, entries []device.Sighting) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "no sightings recorded")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEEN AT\tEVENT\tADDRESS\tRSSI\tNAME")
	for _, s := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.SeenAt.Local().Format(time.DateTime), s.Event,
			presence.FormatAddress(s.Record.Address), s.Record.RSSI, s.Record.DisplayName())
	}
	return tw.Flush()
}
