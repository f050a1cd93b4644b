package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadTarget(t *testing.T) {
	file, id := uploadTarget([]string{"data/prices.csv", "eod_prices"})
	assert.Equal(t, "data/prices.csv", file)
	assert.Equal(t, "eod_prices", id)

	_, id = uploadTarget([]string{"data/prices.csv"})
	assert.Equal(t, "prices", id)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"flow-1", "daily_prices"},
		{"f2", "x"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	assert.Equal(t, "ID      NAME", lines[0])
	assert.Equal(t, strings.Repeat("─", 20), lines[1])
	assert.Equal(t, "flow-1  daily_prices", lines[2])
	assert.Equal(t, "f2      x", lines[3])
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"datasets":   {"cp", "ls", "rm", "sync"},
		"jobs":       {"get", "ls", "outputs", "runs"},
		"strategy":   {"check", "run"},
		"validation": {"rm", "rules", "run"},
	}
	for parent, children := range want {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err)
		for _, child := range children {
			sub, _, err := cmd.Find([]string{child})
			require.NoError(t, err, "%s %s", parent, child)
			assert.Equal(t, child, sub.Name())
		}
	}
}

func TestPartsBar(t *testing.T) {
	var buf bytes.Buffer
	progress, finish := newPartsBar(&buf, "Uploading prices.csv")
	for i := 1; i <= 3; i++ {
		progress(i, 3)
	}
	finish()
	assert.Contains(t, buf.String(), "Uploading prices.csv")
}
