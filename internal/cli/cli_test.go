package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/strategy"
	"straddle-trader/internal/trading"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `
[trading]
mode = "paper"

[schedule]
database_path = "` + filepath.ToSlash(filepath.Join(dir, "schedule.db")) + `"

[logging]
console = false
file = false

[strategy.days.thursday]
run = true
entry_time = "09:20"
exit_time = "15:10"
stop_loss_percent = 1.0
target_percent = 2.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 50000.0
ce_hedge_premium = 5.0
pe_hedge_premium = 5.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "straddle v"+Version)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"`+Version+`","build_date":"`+BuildDate+`"}`, out)
}

func TestConfigValidate(t *testing.T) {
	dir := writeConfig(t)

	out, err := execute(t, "--config", dir, "config", "validate", "--json")
	require.NoError(t, err)
	var res struct {
		Valid bool     `json:"valid"`
		Days  []string `json:"days"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"thursday"}, res.Days)
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))
}

func TestConfigShow(t *testing.T) {
	dir := writeConfig(t)

	out, err := execute(t, "--config", dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "NIFTY")
	assert.Contains(t, out, "09:20-15:10")
	assert.Contains(t, out, "monday")
}

func TestLoadFailureStopsCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[trading]
mode = "margin"
[logging]
console = false
file = false
`), 0o600))

	_, err := execute(t, "--config", dir, "config", "show")
	assert.Error(t, err)
}

func TestScheduleCommands(t *testing.T) {
	dir := writeConfig(t)

	_, err := execute(t, "--config", dir, "schedule", "power", "on")
	require.NoError(t, err)
	_, err = execute(t, "--config", dir, "schedule", "set", "thursday", "--time", "10:15")
	require.NoError(t, err)
	_, err = execute(t, "--config", dir, "schedule", "set", "friday", "--run=false")
	require.NoError(t, err)

	out, err := execute(t, "--config", dir, "schedule", "show", "--json")
	require.NoError(t, err)

	var res struct {
		Power bool `json:"power"`
		Days  []struct {
			Day  string `json:"day"`
			Run  bool   `json:"run"`
			Time string `json:"time"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Power)
	require.Len(t, res.Days, 5)
	for _, d := range res.Days {
		switch d.Day {
		case "thursday":
			assert.True(t, d.Run)
			assert.Equal(t, "10:15", d.Time)
		default:
			assert.False(t, d.Run, d.Day)
			assert.Empty(t, d.Time, d.Day)
		}
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	dir := writeConfig(t)

	_, err := execute(t, "--config", dir, "schedule", "set", "saturday")
	assert.Error(t, err)

	_, err = execute(t, "--config", dir, "schedule", "set", "thursday", "--time", "25:00")
	assert.Error(t, err)

	_, err = execute(t, "--config", dir, "schedule", "power", "maybe")
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	output := NewOutput(root)

	res := strategy.Result{
		SessionID: "s-1",
		Snapshot: strategy.Snapshot{
			State:      strategy.StateExited,
			Strike:     17500,
			Lots:       4,
			ExitReason: trading.ExitReasonTarget,
			PnL:        trading.Breakdown{Realized: 25000, Total: 25000},
		},
	}
	require.NoError(t, printResult(output, res))
	assert.Contains(t, buf.String(), "Session s-1 finished")
	assert.Contains(t, buf.String(), "17500, 4 lots")
	assert.Contains(t, buf.String(), "+₹25,000.00")
}

func TestSessionStatus(t *testing.T) {
	s := &sessionStatus{}
	assert.Nil(t, s.Current())
	_, ok := s.Last()
	assert.False(t, ok)

	s.finish(strategy.Result{SessionID: "s-9"})
	res, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "s-9", res.SessionID)
	assert.Nil(t, s.Current())
}
