//go:build cgo

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsListsHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	env := newCLIEnv(t, modelReply, "db_path: "+db+"\n")

	out, _, err := execute(t, "-c", env.config, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")

	_, _, err = execute(t, "-c", env.config, "extract", env.paper, "--api-key", "k", "--history")
	require.NoError(t, err)

	out, _, err = execute(t, "-c", env.config, "runs", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "attention.pdf")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "method_")
}
