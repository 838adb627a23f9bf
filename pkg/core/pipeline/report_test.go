package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportResult() *RunResult {
	return &RunResult{
		Success: true,
		Message: "processed 2 companies (2 succeeded, 0 failed) in 1m0s",
		Stats: RunStats{
			RunID:            "test-run",
			Total:            2,
			Succeeded:        2,
			MandatoryTargets: 1,
			DiscoveredFilers: 1,
		},
		Companies: []CompanyOutcome{
			{CIK: "1067983", Name: "Berkshire Hathaway", Mandatory: true, Processed: 4},
			{CIK: "1364742", Name: "BlackRock", Processed: 3, Skipped: 1},
		},
	}
}

func TestBuildReport(t *testing.T) {
	md := BuildReport(reportResult())

	assert.Contains(t, md, "# 13F Pipeline Run test-run")
	assert.Contains(t, md, "| Companies | 2 |")
	assert.Contains(t, md, "| 1067983 | Berkshire Hathaway | mandatory | 4 | 0 | - |")
	assert.Contains(t, md, "| 1364742 | BlackRock | discovered | 3 | 1 | - |")
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteReport(reportResult(), dir))

	md, err := os.ReadFile(filepath.Join(dir, "run_test-run.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "13F Pipeline Run")

	html, err := os.ReadFile(filepath.Join(dir, "run_test-run.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1")
}
