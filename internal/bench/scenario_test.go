package bench

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: teardown
waiters: 8
rounds: 3
cancel_every: 2
release_instead_of_signal: true
timeout: 5s
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, Scenario{
		Name:        "teardown",
		Waiters:     8,
		Rounds:      3,
		CancelEvery: 2,
		Release:     true,
		Timeout:     5 * time.Second,
	}, sc)
}

func TestLoadScenarioDefaults(t *testing.T) {
	path := writeScenario(t, "waiters: 3\n")
	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, path, sc.Name)
	assert.Equal(t, 3, sc.Waiters)
	assert.Equal(t, Default.Rounds, sc.Rounds)
	assert.Equal(t, Default.Timeout, sc.Timeout)
}

func TestLoadScenarioErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field": "waiters: 3\nspeed: fast\n",
		"bad waiters":   "waiters: 0\n",
		"bad rounds":    "rounds: -1\n",
		"bad cancel":    "cancel_every: -2\n",
		"bad duration":  "timeout: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
