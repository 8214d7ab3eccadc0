package warehousectl

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

type schemaField struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Mode   string        `json:"mode"`
	Fields []schemaField `json:"fields"`
}

type auditEntry struct {
	ID          int64     `json:"id"`
	Principal   string    `json:"principal"`
	OriginalSQL string    `json:"original_sql"`
	Status      string    `json:"status"`
	RowCount    int       `json:"row_count"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

const maxCellWidth = 60

func renderTable(w io.Writer, data [][]string) error {
	if len(data) <= 1 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(data)).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

// renderRows prints query rows with one column per key, in sorted order.
func renderRows(w io.Writer, rows []map[string]any) error {
	columnSet := map[string]struct{}{}
	for _, row := range rows {
		for column := range row {
			columnSet[column] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for column := range columnSet {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	data := [][]string{columns}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, column := range columns {
			line[i] = formatCell(row[column])
		}
		data = append(data, line)
	}
	return renderTable(w, data)
}

func renderSchema(w io.Writer, fields []schemaField) error {
	data := [][]string{{"NAME", "TYPE", "MODE"}}
	var walk func(prefix string, fields []schemaField)
	walk = func(prefix string, fields []schemaField) {
		for _, field := range fields {
			data = append(data, []string{prefix + field.Name, field.Type, field.Mode})
			if len(field.Fields) > 0 {
				walk(prefix+field.Name+".", field.Fields)
			}
		}
	}
	walk("", fields)
	return renderTable(w, data)
}

func renderAudit(w io.Writer, entries []auditEntry) error {
	data := [][]string{{"ID", "CREATED", "STATUS", "PRINCIPAL", "ROWS", "MS", "SQL"}}
	for _, entry := range entries {
		data = append(data, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.Status,
			entry.Principal,
			strconv.Itoa(entry.RowCount),
			strconv.FormatInt(entry.DurationMs, 10),
			truncate(entry.OriginalSQL),
		})
	}
	return renderTable(w, data)
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return truncate(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return truncate(fmt.Sprint(typed))
	}
}

func truncate(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if len(value) <= maxCellWidth {
		return value
	}
	return value[:maxCellWidth-3] + "..."
}
