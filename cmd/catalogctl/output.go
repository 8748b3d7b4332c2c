package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
)

// Output flags.
var (
	outputFormat string
	outputField  string
)

var productColumns = []string{"id", "titulo", "precio", "nucleos", "ram", "disco", "cluster", "estado"}

func printResult(data any) { render(os.Stdout, data) }

func render(out io.Writer, data any) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.Encode(data) //nolint:errcheck
	case "raw":
		renderRaw(out, data)
	default:
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer tw.Flush()
		switch v := data.(type) {
		case []any:
			renderRows(tw, v)
		case map[string]any:
			// Wrapped lists such as {"data": [...]} print as rows.
			if rows, ok := v["data"].([]any); ok && len(v) <= 2 {
				renderRows(tw, rows)
				return
			}
			renderKV(tw, v, "")
		default:
			fmt.Fprintln(tw, v)
		}
	}
}

func renderRaw(out io.Writer, data any) {
	m, ok := data.(map[string]any)
	if !ok {
		fmt.Fprintln(out, data)
		return
	}
	if outputField != "" {
		if v, ok := m[outputField]; ok {
			fmt.Fprintln(out, v)
		}
		return
	}
	for _, k := range keysOf(m) {
		fmt.Fprintf(out, "%s=%v\n", k, m[k])
	}
}

func renderKV(w io.Writer, m map[string]any, indent string) {
	for _, k := range keysOf(m) {
		switch v := m[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s%s\t\n", indent, strings.ToUpper(k))
			renderKV(w, v, indent+"  ")
		case []any:
			fmt.Fprintf(w, "%s%s\t%s\n", indent, k, joinAny(v))
		default:
			fmt.Fprintf(w, "%s%s\t%v\n", indent, k, v)
		}
	}
}

// renderRows prints product-shaped rows; other objects fall back to their own keys.
func renderRows(w io.Writer, rows []any) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}
	cols := productColumns
	if first, ok := rows[0].(map[string]any); ok {
		if _, isProduct := first["titulo"]; !isProduct {
			cols = keysOf(first)
		}
	}
	fmt.Fprintln(w, strings.ToUpper(strings.Join(cols, "\t")))
	for _, r := range rows {
		m, _ := r.(map[string]any)
		cells := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := m[c]; ok {
				cells[i] = cell(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func cell(v any) string {
	if l, ok := v.([]any); ok {
		return joinAny(l)
	}
	return fmt.Sprint(v)
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func joinAny(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

func printError(msg string) { fmt.Fprintln(os.Stderr, "Error:", msg) }

func printSuccess(msg string) { fmt.Println(msg) }
