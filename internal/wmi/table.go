package wmi

import "strings"

// Result is a parsed table together with the status of the query.
// Table is empty whenever Status is not StatusOK.
type Result struct {
	Status Status
	Table  [][]string
}

// Render joins the table rows with sep and terminates every row, the last one
// included, with a line break.
func (r Result) Render(sep rune) string {
	if r.Status != StatusOK || len(r.Table) == 0 {
		return ""
	}
	s := string(sep)
	var b strings.Builder
	for _, row := range r.Table {
		b.WriteString(strings.Join(row, s))
		b.WriteByte('\n')
	}
	return b.String()
}

// buildTable turns enumerated instances into header + rows. The header is the
// property order of the first instance; later instances are aligned to it by
// name so every row carries the same field count.
func buildTable(instances []Instance) [][]string {
	if len(instances) == 0 {
		return nil
	}
	header := instances[0].Names()
	table := make([][]string, 0, len(instances)+1)
	table = append(table, header)
	for _, inst := range instances {
		row := make([]string, len(header))
		for i, name := range header {
			row[i] = inst.Get(name)
		}
		table = append(table, row)
	}
	return table
}

// PostProcess appends the status column to an already rendered table: the
// header gets StatusColumnHeader, every data row gets column.Text(). All other
// fields and the row count are left untouched.
func PostProcess(text string, column StatusColumn, sep rune) string {
	if text == "" {
		return ""
	}
	trailing := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	s := string(sep)
	value := column.Text()
	var b strings.Builder
	b.Grow(len(text) + len(lines)*(len(value)+1))
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		b.WriteString(s)
		if i == 0 {
			b.WriteString(StatusColumnHeader)
		} else {
			b.WriteString(value)
		}
	}
	if trailing {
		b.WriteByte('\n')
	}
	return b.String()
}
