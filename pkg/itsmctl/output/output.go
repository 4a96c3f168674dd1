// Package output renders itsmctl results as tables or as JSON/YAML documents.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatWide  Format = "wide"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatWide:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (expected table, wide, json or yaml)", value)
	}
}

// Structured reports whether the format is a document format rather than a table.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case FormatTable:
		return fmt.Errorf("table format requires a specific formatter")
	case FormatWide:
		return fmt.Errorf("wide format requires a specific formatter")
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// Now is the reference time for relative ages; tests pin it.
var Now = time.Now

// Age renders t relative to Now, "-" for the zero time.
func Age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, Now(), "ago", "from now")
}

func AgePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return Age(*t)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
