package report

import (
	"fmt"
	"io"
	"strings"

	"image-optimizer-go/internal/bytesize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	savedStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("2"))
	grownStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("1"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(22)
	countStyle  = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("3")).Foreground(lipgloss.Color("0")).Padding(0, 1)
)

// Table renders the per-file metrics as a bordered table.
func (r *Report) Table() string {
	rows := make([][]string, 0, len(r.Files))
	for _, f := range r.Files {
		rows = append(rows, []string{
			f.FileName,
			bytesize.ReadableSize(f.OriginalBytes),
			bytesize.ReadableSize(f.CompressedBytes),
			reduction(f.Reduced()),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Image", "Original", "Compressed", "Saved").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && r.Files[row].ReductionPercent < 0:
				return grownStyle
			case col == 3:
				return savedStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}

// Totals renders the summary block printed under the table.
func (r *Report) Totals() string {
	s := r.Summary
	saved := savedStyle
	if s.OverallReductionPercent < 0 {
		saved = grownStyle
	}
	lines := []string{
		labelStyle.Render("Total File Count") + countStyle.Render(fmt.Sprint(s.TotalFiles)),
		labelStyle.Render("Total Original") + bytesize.ReadableSize(s.TotalOriginalBytes),
		labelStyle.Render("Total Compressed") + bytesize.ReadableSize(s.TotalCompressedBytes),
		labelStyle.Render("Total Saved") + savedBytes(s.SavedBytes()),
		labelStyle.Render("Overall Saved") + saved.UnsetPadding().Render(reduction(s.Reduced())),
	}
	return strings.Join(lines, "\n")
}

func reduction(p float64, defined bool) string {
	if !defined {
		return "n/a"
	}
	return Percent(p)
}

func savedBytes(n int64) string {
	if n < 0 {
		return "-" + bytesize.ReadableSize(-n)
	}
	return bytesize.ReadableSize(n)
}

// Render writes the table and totals to w.
func (r *Report) Render(w io.Writer) error {
	if len(r.Files) == 0 {
		_, err := fmt.Fprintln(w, "No images were compressed.")
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n\n%s\n", r.Table(), r.Totals())
	return err
}
