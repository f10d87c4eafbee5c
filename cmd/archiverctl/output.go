package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// tableStyle 终端输出用圆角表格，管道或文件输出用纯 ASCII
func tableStyle(w io.Writer) table.Style {
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return table.StyleRounded
		}
	}
	return table.StyleDefault
}

func printTable(cmd *cobra.Command, headers []string, rows [][]string, aligns []columnAlignment) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(headers, rows, aligns, tableStyle(out)))
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatUsage(u biz.Usage) (used, quota, ratio string) {
	used = formatBytes(u.Used)
	if u.Unlimited {
		return used, "unlimited", "-"
	}
	return used, formatBytes(u.Quota), strconv.FormatFloat(u.Ratio()*100, 'f', 1, 64) + "%"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
