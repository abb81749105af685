package evaluate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gonum.org/v1/gonum/floats"
)

// WriteCSV writes one row per threshold in ascending order under the header
// Threshold,TPR,TNR.
func WriteCSV(w io.Writer, r Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Threshold", "TPR", "TNR"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range r.Rows() {
		if err := cw.Write([]string{formatFloat(row.Threshold), formatFloat(row.TPR), formatFloat(row.TNR)}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Best returns the threshold with the highest Youden's J. Ties go to the
// lowest threshold. ok is false for an empty result.
func (r Result) Best() (best Rates, ok bool) {
	rows := r.Rows()
	if len(rows) == 0 {
		return Rates{}, false
	}
	js := make([]float64, len(rows))
	for i, row := range rows {
		js[i] = row.J()
	}
	return rows[floats.MaxIdx(js)], true
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = cellStyle.Foreground(lipgloss.Color("42")).Bold(true)
)

// RenderTable renders the result for a terminal, highlighting the best row.
func RenderTable(r Result) string {
	rows := r.Rows()
	best, hasBest := r.Best()

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers("Threshold", "TPR", "TNR", "TP", "TN", "Unfit", "Fit")

	bestRow := -1
	for i, row := range rows {
		if hasBest && row.Threshold == best.Threshold {
			bestRow = i
		}
		t.Row(
			formatFloat(row.Threshold),
			fmt.Sprintf("%.4f", row.TPR),
			fmt.Sprintf("%.4f", row.TNR),
			strconv.Itoa(row.TruePositive),
			strconv.Itoa(row.TrueNegative),
			strconv.Itoa(row.Unfit),
			strconv.Itoa(row.Fit),
		)
	}

	t.StyleFunc(func(row, _ int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row == bestRow:
			return bestStyle
		default:
			return cellStyle
		}
	})

	return t.String()
}
