package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() { Init(LevelOff) })
	return &buf
}

func TestLevelGating(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Info("session %s", "running")
	Verbose("should not appear")
	Trace("nor this")

	got := buf.String()
	if !strings.Contains(got, "session running") {
		t.Errorf("info message missing from output: %q", got)
	}
	if strings.Contains(got, "should not appear") || strings.Contains(got, "nor this") {
		t.Errorf("messages above level leaked: %q", got)
	}
}

func TestOffProducesNothing(t *testing.T) {
	buf := captureOutput(t, LevelOff)

	Info("hidden")
	Error(errors.New("hidden too"))

	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestTransitionIncludesStates(t *testing.T) {
	buf := captureOutput(t, LevelLive)

	Transition("running", "interrupted", nil)

	got := buf.String()
	if !strings.Contains(got, "running") || !strings.Contains(got, "interrupted") {
		t.Errorf("transition fields missing: %q", got)
	}
}

func TestIsEnabled(t *testing.T) {
	captureOutput(t, LevelVerbose)
	if !IsEnabled(LevelLive) {
		t.Error("live should be enabled at verbose level")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at verbose level")
	}
}

func TestFmt(t *testing.T) {
	captureOutput(t, LevelOff)
	if got := Fmt("%d", 1); got != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", got)
	}
	Init(LevelInfo)
	if got := Fmt("%d m", 12); got != "12 m" {
		t.Errorf("Fmt = %q, want %q", got, "12 m")
	}
}
