package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
)

// BuildReport renders a markdown summary of a run for operators.
func BuildReport(result *RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# 13F Pipeline Run %s\n\n", result.Stats.RunID)
	fmt.Fprintf(&b, "%s\n\n", result.Message)
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Companies | %d |\n", result.Stats.Total)
	fmt.Fprintf(&b, "| Succeeded | %d |\n", result.Stats.Succeeded)
	fmt.Fprintf(&b, "| Failed | %d |\n", result.Stats.Failed)
	fmt.Fprintf(&b, "| Mandatory targets | %d |\n", result.Stats.MandatoryTargets)
	fmt.Fprintf(&b, "| Discovered filers | %d |\n\n", result.Stats.DiscoveredFilers)

	if len(result.Companies) > 0 {
		b.WriteString("## Companies\n\n")
		b.WriteString("| CIK | Name | Source | Filings processed | Skipped | Error |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, c := range result.Companies {
			source := "discovered"
			if c.Mandatory {
				source = "mandatory"
			}
			errText := c.Err
			if errText == "" {
				errText = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %s |\n",
				c.CIK, c.Name, source, c.Processed, c.Skipped, errText)
		}
	}

	return b.String()
}

// WriteReport writes the markdown report and an HTML rendering next to each
// other under dir. Report failures never fail a run.
func WriteReport(result *RunResult, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	markdown := BuildReport(result)
	base := filepath.Join(dir, "run_"+result.Stats.RunID)

	if err := os.WriteFile(base+".md", []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &html); err != nil {
		return fmt.Errorf("failed to render report html: %w", err)
	}
	if err := os.WriteFile(base+".html", html.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write html report: %w", err)
	}
	return nil
}
