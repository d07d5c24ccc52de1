package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"updateengine/internal/logging"
	"updateengine/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status files of the last update attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			values, err := status.New(cfg.Paths.StatusDir, "").Snapshot()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(values) == 0 {
				fmt.Fprintf(out, "No update status in %s\n", cfg.Paths.StatusDir)
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Value", "Detail"}, statusRows(values), 1))
			return nil
		},
	}
}

// statusRows lists the present status files in display order. Byte counts get
// a human readable detail column; progress is shown against expected-size.
func statusRows(values map[string]string) [][]string {
	printer := message.NewPrinter(language.English)
	rows := make([][]string, 0, len(values))
	for _, name := range status.Files {
		value, ok := values[name]
		if !ok {
			continue
		}
		display, detail := value, ""
		switch name {
		case status.ExpectedDownloadSize, status.ExpectedSize:
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				display = printer.Sprintf("%d", n)
				detail = logging.FormatBytes(n)
			}
		case status.Progress:
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				display = printer.Sprintf("%d", n)
				detail = progressDetail(n, values[status.ExpectedSize])
			}
		case status.Done:
			if value == "1" {
				detail = "reboot to switch slots"
			}
		}
		rows = append(rows, []string{name, display, detail})
	}
	return rows
}

func progressDetail(done int64, expected string) string {
	total, err := strconv.ParseInt(expected, 10, 64)
	if err != nil || total <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f%%", float64(done)*100/float64(total))
}
