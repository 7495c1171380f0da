package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/1F47E/geo-marker-cluster/internal/tui"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/pipeline"
	"github.com/1F47E/geo-marker-cluster/pkg/viewport"
)

var (
	stdoutTTY = isTerminal(os.Stdout)
	stderrTTY = isTerminal(os.Stderr)

	// plain text when not on a terminal
	titleStyle   = styled(stdoutTTY, tui.TitleStyle)
	labelStyle   = styled(stdoutTTY, tui.SubtitleStyle)
	statStyle    = styled(stdoutTTY, tui.StatStyle)
	summaryStyle = styled(stderrTTY, tui.StatStyle)
	dimStyle     = styled(stderrTTY, tui.DimStyle)
	errorStyle   = styled(stderrTTY, tui.ErrorStyle)
)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func styled(tty bool, s lipgloss.Style) lipgloss.Style {
	if !tty {
		return lipgloss.NewStyle()
	}
	return s
}

func printViewBox(w io.Writer, res viewport.Result) {
	stat := func(label string, value any) {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", label+":")), statStyle.Render(fmt.Sprint(value)))
	}
	loc := func(l models.Location) string { return fmt.Sprintf("%.6f, %.6f", l.Lat, l.Lon) }

	fmt.Fprintln(w, titleStyle.Render("View box"))
	stat("lower left", loc(res.BottomLeft))
	stat("top right", loc(res.TopRight))
	stat("center", loc(res.Center))
	stat("minimal distance", res.MinimalDistance)
	stat("zoom level", fmt.Sprintf("%.4f", res.ZoomLevel))
	stat("constraining axis", res.Constraining)
}

// printSummary reports a pass on stderr so stdout stays valid GeoJSON
func printSummary(w io.Writer, strategy string, s pipeline.Stats) {
	fmt.Fprintf(w, "%s %s input, %s discarded, %s visible, %s markers (%s merged) in %s %s\n",
		dimStyle.Render("clustered"),
		summaryStyle.Render(fmt.Sprint(s.Input)),
		summaryStyle.Render(fmt.Sprint(s.Discarded)),
		summaryStyle.Render(fmt.Sprint(s.Visible)),
		summaryStyle.Render(fmt.Sprint(s.Clusters)),
		summaryStyle.Render(fmt.Sprint(s.Merged)),
		summaryStyle.Render(s.Duration.String()),
		dimStyle.Render("["+strategy+"]"),
	)
}

// printStoreStats reports table and index sizes after a load
func printStoreStats(w io.Writer, table string, stats map[string]any) {
	fmt.Fprintf(w, "%s %s rows in %s (table %s, index %s)\n",
		dimStyle.Render("loaded"),
		summaryStyle.Render(fmt.Sprint(stats["row_count"])),
		summaryStyle.Render(table),
		summaryStyle.Render(fmt.Sprint(stats["table_size"])),
		summaryStyle.Render(fmt.Sprint(stats["index_size"])),
	)
}
