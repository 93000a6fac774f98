package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/livetemplate/pagecraft/internal/document"
)

// maxColumnWidth is the maximum width for table columns before truncation
const maxColumnWidth = 50

// elementColumns are the columns printed for element listings.
var elementColumns = []string{"pos", "key", "type", "content"}

func elementRows(els []*document.Element, withSection bool) [][]string {
	rows := make([][]string, len(els))
	for i, el := range els {
		row := []string{strconv.Itoa(el.Metadata.Position), el.Key, string(el.Type), contentSummary(el.Content)}
		if withSection {
			row = append([]string{el.SectionID}, row...)
		}
		rows[i] = row
	}
	return rows
}

func contentSummary(c document.Content) string {
	if c.IsList {
		return strings.Join(c.Items, "; ")
	}
	return c.Text
}

// writeElements prints elements in the requested format.
func writeElements(w io.Writer, format string, els []*document.Element, withSection bool) error {
	columns := elementColumns
	if withSection {
		columns = append([]string{"section"}, columns...)
	}
	switch format {
	case "json":
		if els == nil {
			els = []*document.Element{}
		}
		return writeJSON(w, els)
	case "csv":
		return writeCSV(w, columns, elementRows(els, withSection))
	case "table", "":
		writeTable(w, columns, elementRows(els, withSection))
		fmt.Fprintf(w, "\n%d element(s)\n", len(els))
		return nil
	default:
		return fmt.Errorf("unknown format %q (use table, json or csv)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// truncateString truncates a string to maxColumnWidth with ellipsis if needed
func truncateString(s string) string {
	if r := []rune(s); len(r) > maxColumnWidth {
		return string(r[:maxColumnWidth-3]) + "..."
	}
	return s
}

// writeTable prints rows under an upper-cased header.
func writeTable(w io.Writer, columns []string, rows [][]string) {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[r][i] = truncateString(row[i])
			}
			if n := len([]rune(cells[r][i])); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var header, separator strings.Builder
	for i, col := range columns {
		if i > 0 {
			header.WriteString(" | ")
			separator.WriteString("-+-")
		}
		fmt.Fprintf(&header, "%-*s", widths[i], strings.ToUpper(col))
		separator.WriteString(strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(header.String(), " "))
	fmt.Fprintln(w, separator.String())

	for _, row := range cells {
		var line strings.Builder
		for i, cell := range row {
			if i > 0 {
				line.WriteString(" | ")
			}
			fmt.Fprintf(&line, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}

// parseValue attempts to parse a string value into an appropriate Go type.
// JSON objects and arrays are decoded so props like form fields can be set.
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	// Check if it contains a decimal point - if so, parse as float
	// This prevents "123.0" from being parsed as int64
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

// parsePairs turns key=value flags into a map.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %q: expected key=value", p)
		}
		out[k] = parseValue(v)
	}
	return out, nil
}
