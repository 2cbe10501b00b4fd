package docs

import (
	"regexp"
	"strings"
)

const maxTableRows = 50

var columnGap = regexp.MustCompile(`\s{2,}`)

// AlignedTables rewrites runs of at least two lines that split into the same number
// (two or more) of columns on gaps of two or more spaces as Markdown tables. The first
// line becomes the header. Everything else is passed through unchanged.
func AlignedTables(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		rows := tableRun(lines[i:])
		if len(rows) < 2 {
			out = append(out, lines[i])
			i++
			continue
		}
		out = append(out, tableRow(rows[0]), tableRow(make([]string, len(rows[0]))))
		for _, r := range rows[1:] {
			out = append(out, tableRow(r))
		}
		i += len(rows)
	}
	return strings.Join(out, "\n")
}

func tableRun(lines []string) [][]string {
	var rows [][]string
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "|") {
			break
		}
		cells := columnGap.Split(ln, -1)
		if len(cells) < 2 || (len(rows) > 0 && len(cells) != len(rows[0])) {
			break
		}
		rows = append(rows, cells)
		if len(rows) == maxTableRows {
			break
		}
	}
	return rows
}

// tableRow renders cells; empty cells render as the header separator.
func tableRow(cells []string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		if c = strings.TrimSpace(c); c == "" {
			c = "---"
		}
		parts[i] = c
	}
	return "| " + strings.Join(parts, " | ") + " |"
}
