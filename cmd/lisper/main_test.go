package main

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svoctor/lisper-go"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default, since rootCmd is shared between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "lisper version "+lisper.Version+"\n", out)
}

func TestHighlight_JSONFromStdin(t *testing.T) {
	out, err := execute(t, "(+ 1 2)", "highlight", "--format", "json")
	require.NoError(t, err)

	var m struct {
		Balanced bool `json:"balanced"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.True(t, m.Balanced)
	assert.Contains(t, out, `"kind": "form"`)
}

func TestHighlight_UnknownFormat(t *testing.T) {
	_, err := execute(t, "(a)", "highlight", "--format", "svg")
	assert.ErrorContains(t, err, `unknown format "svg"`)
}

func TestConfig_ShowsFlagOverrides(t *testing.T) {
	out, err := execute(t, "", "config", "--theme", "dark", "--store", "bolt")
	require.NoError(t, err)
	assert.Contains(t, out, "theme: dark")
	assert.Contains(t, out, "backend: bolt")
}

func TestConfig_RejectsUnknownValues(t *testing.T) {
	_, err := execute(t, "", "config", "--theme", "drak")
	assert.ErrorContains(t, err, `did you mean "dark"`)
}

func TestEval_WithProcessEvaluator(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	out, err := execute(t, "", "eval", "--theme", "light", "--evaluator", "process", "--command", "cat", "-e", "(car '(a b))")
	require.NoError(t, err)
	assert.Equal(t, "(car '(a b))\n", out)
}
