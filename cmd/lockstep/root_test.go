package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSimulateCmd(t *testing.T) {
	out, err := runCmd(t, "simulate", "--frames", "50", "--players", "2", "--rollback-every", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "frames:     50\n")
	assert.Contains(t, out, "rollbacks:  8\n")
	assert.Contains(t, out, "final hash: ")

	// Same seed, same final hash, with or without rollbacks.
	again, err := runCmd(t, "simulate", "--frames", "50", "--players", "2", "--rollback-every", "0")
	require.NoError(t, err)
	assert.Equal(t, finalHash(t, out), finalHash(t, again))
}

func TestSimulateCmd_BadLogFlags(t *testing.T) {
	_, err := runCmd(t, "simulate", "--log-flags", "physics")
	assert.Error(t, err)
}

func TestRunCmd_BadStorage(t *testing.T) {
	_, err := runCmd(t, "run", "--snapshot-storage", "floppy")
	assert.Error(t, err)
}

func finalHash(t *testing.T, out string) string {
	t.Helper()
	i := strings.Index(out, "final hash: ")
	require.GreaterOrEqual(t, i, 0)
	return out[i:]
}
