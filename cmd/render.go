package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/sobandev/careerpilot-ai/internal/output"
	"github.com/sobandev/careerpilot-ai/internal/portal"
)

// printRecord prints a free-form payload as sorted key/value lines, or as
// JSON when --json is set.
func printRecord(p *output.Printer, r portal.Record) error {
	if jsonOutput {
		return p.JSON(r)
	}
	if r == nil {
		p.Print("%s", p.Dim("(none)"))
		return nil
	}
	for _, key := range slices.Sorted(maps.Keys(r)) {
		p.KeyValue(key, formatValue(r[key]))
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if _, nested := item.(map[string]any); nested {
				return compactJSON(val)
			}
			parts = append(parts, formatValue(item))
		}
		if len(parts) == 0 {
			return "-"
		}
		return strings.Join(parts, ", ")
	default:
		return compactJSON(val)
	}
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func renderJobs(p *output.Printer, jobs []portal.Job) error {
	t := output.NewTable(p.Out(), "ID", "TITLE", "COMPANY", "LOCATION", "TYPE", "MATCH")
	for _, j := range jobs {
		company := "-"
		if j.Company != nil && j.Company.Name != "" {
			company = j.Company.Name
		}
		match := "-"
		if j.MatchScore != nil {
			match = strconv.FormatFloat(*j.MatchScore, 'f', 0, 64) + "%"
		}
		t.AddRow(j.ID, j.Title, company, orDash(j.Location), orDash(j.JobType), match)
	}
	return t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
