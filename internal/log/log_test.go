package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"none":    LevelNone,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("low-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "WARN: warn 3") || !strings.Contains(out, "ERROR: error 4") {
		t.Fatalf("missing messages: %q", out)
	}
}

func TestWithPrefixesScope(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug).With("runner").With("GTDT")
	l.Infof("frame %d", 7)
	if !strings.Contains(buf.String(), "INFO: [runner] [GTDT] frame 7") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNilAndDiscardAreSilent(t *testing.T) {
	var l *Logger
	l.Errorf("nothing")
	Discard().Errorf("nothing")
}
