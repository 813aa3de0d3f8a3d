package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Output formats of the tabular commands.
var formats = []string{"table", "markdown", "csv", "json"}

// renderRows writes rows under cols in the given format.
func renderRows(w io.Writer, format string, cols []string, rows [][]string) error {
	if format == "json" {
		results := make([]map[string]string, 0, len(rows))
		for _, r := range rows {
			m := make(map[string]string, len(cols))
			for i, c := range cols {
				m[c] = r[i]
			}
			results = append(results, m)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}

	switch format {
	case "table", "":
		t.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	case "markdown", "md":
		t.RenderMarkdown()
	case "csv":
		t.RenderCSV()
	default:
		return fmt.Errorf("unknown format %q, expected one of %s", format, strings.Join(formats, ", "))
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []string:
		if len(x) == 1 {
			return x[0]
		}
	case []float64:
		if len(x) == 1 {
			return formatFloat(x[0])
		}
		if len(x) > 8 {
			return summarize(x)
		}
	case []int64:
		if len(x) == 1 {
			return fmt.Sprint(x[0])
		}
	case []uint64:
		if len(x) == 1 {
			return fmt.Sprint(x[0])
		}
	case []uint32:
		if len(x) == 1 {
			return fmt.Sprint(x[0])
		}
		if len(x) > 8 {
			return fmt.Sprintf("%v ... (%d values)", x[:8], len(x))
		}
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.6g", f)
}

// summarize condenses a long float record: NaN cells are counted apart.
func summarize(x []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	var n, nan int
	for _, v := range x {
		if math.IsNaN(v) {
			nan++
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
		n++
	}
	if n == 0 {
		return fmt.Sprintf("n=%d all NaN", len(x))
	}
	return fmt.Sprintf("n=%d min=%s max=%s sum=%s nan=%d",
		len(x), formatFloat(lo), formatFloat(hi), formatFloat(sum), nan)
}

func formatDims(dims []uint64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprint(d)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
