package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderReport(fileName string, summary *models.ResultSummary, colorize bool) string {
	count := summary.ViolationCount()
	if count == 0 {
		return fmt.Sprintf("%s: no accessibility violations found", fileName)
	}

	tw := table.NewWriter()
	if colorize {
		tw.SetStyle(table.StyleColoredDark)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.SetTitle(fmt.Sprintf("%s: %d violation(s)", fileName, count))
	tw.AppendHeader(table.Row{"Rule", "Impact", "Nodes", "Help"})

	for _, v := range summary.Violations {
		tw.AppendRow(table.Row{v.ID, impactLabel(v.Impact), strconv.Itoa(len(v.Nodes)), helpText(v)})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: 80},
	})

	return tw.Render()
}

func impactLabel(impact string) string {
	if impact == "" {
		return "-"
	}
	return impact
}

func helpText(v models.Violation) string {
	help := strings.TrimSpace(v.Help)
	if v.HelpURL != "" {
		help += "\n" + v.HelpURL
	}
	return help
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
