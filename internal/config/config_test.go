package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := Empty()
	if got := c.GetListenAddr(); got != "localhost:9001" {
		t.Errorf("GetListenAddr() = %q", got)
	}
	if got := c.GetLogSinkAddr(); got != "localhost:9877" {
		t.Errorf("GetLogSinkAddr() = %q", got)
	}
	if got := c.GetDBPath(); got != "oakbridge.db" {
		t.Errorf("GetDBPath() = %q", got)
	}
	if c.GetSimMode() {
		t.Error("GetSimMode() = true by default")
	}
	if got := c.GetSimDevices(); len(got) != 1 || got[0] != "sim-oak-0" {
		t.Errorf("GetSimDevices() = %v", got)
	}
	if got := c.GetStatsInterval(); got != 5*time.Second {
		t.Errorf("GetStatsInterval() = %v", got)
	}
	if got := c.GetPollInterval(); got != time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": "0.0.0.0:9002",
		"sim_mode": true,
		"sim_devices": ["a", "b"],
		"stats_interval": "10s"
	}`)

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.GetListenAddr(); got != "0.0.0.0:9002" {
		t.Errorf("GetListenAddr() = %q", got)
	}
	if !c.GetSimMode() {
		t.Error("sim mode not loaded")
	}
	if got := c.GetSimDevices(); len(got) != 2 {
		t.Errorf("GetSimDevices() = %v", got)
	}
	if got := c.GetStatsInterval(); got != 10*time.Second {
		t.Errorf("GetStatsInterval() = %v", got)
	}
	// Unset fields keep defaults.
	if got := c.GetDBPath(); got != "oakbridge.db" {
		t.Errorf("GetDBPath() = %q", got)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(writeConfig(t, `{"stats_interval": "not a duration"}`)); err == nil {
		t.Error("bad stats_interval accepted")
	}
	if _, err := Load(writeConfig(t, `{"sim_devices": ["a"], "sim_mode": false}`)); err == nil {
		t.Error("sim_devices without sim_mode accepted")
	}
	if _, err := Load(writeConfig(t, `not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "config.yaml")); err == nil {
		t.Error("non-json extension accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
}
