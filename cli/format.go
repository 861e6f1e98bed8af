package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// maxCellLength limits the width of a table cell, since event payloads can contain whole messages.
const maxCellLength = 80

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(time.RFC3339)
}

func formatTimeOrNil(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

// formatVariables formats variables as name=JSON lines, sorted by name.
func formatVariables(variables map[string]any) (string, error) {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		b, err := json.Marshal(variables[name])
		if err != nil {
			return "", fmt.Errorf("failed to marshal variable %s: %v", name, err)
		}

		sb.WriteString(name)
		sb.WriteRune('=')
		sb.Write(b)
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}

func newTable(headers []string) table {
	rows := make([][]string, 2)
	rows[0] = headers
	rows[1] = make([]string, len(headers))

	return table{rows: rows}
}

type table struct {
	rows [][]string
}

func (t *table) addRow(row []string) {
	cells := make([]string, len(row))
	for i, value := range row {
		cells[i] = truncate(value)
	}
	t.rows = append(t.rows, cells)
}

func (t *table) format() string {
	columns := make([]int, len(t.rows[0]))
	for _, row := range t.rows {
		for j := range columns {
			if l := utf8.RuneCountInString(row[j]); columns[j] < l {
				columns[j] = l
			}
		}
	}

	last := len(columns) - 1

	var sb strings.Builder
	for _, row := range t.rows {
		var line strings.Builder
		for j := range columns {
			if j != 0 {
				line.WriteString("   ")
			}

			value := row[j]
			line.WriteString(value)

			if j == last {
				continue
			}
			line.WriteString(strings.Repeat(" ", columns[j]-utf8.RuneCountInString(value)))
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteRune('\n')
	}

	return sb.String()
}

func truncate(value string) string {
	if utf8.RuneCountInString(value) <= maxCellLength {
		return value
	}
	runes := []rune(value)
	return string(runes[:maxCellLength-3]) + "..."
}
