package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, WarnLevel)

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestWithPrefixSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, InfoLevel)
	engineLog := root.With("Engine")

	engineLog.Infof("tick %d", 7)
	assert.Contains(t, buf.String(), "[INFO] [Engine] tick 7")

	root.SetLevel(ErrorLevel)
	buf.Reset()
	engineLog.Infof("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, ErrorLevel, engineLog.Level())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Infof("nothing")
		log.With("x").Errorf("nothing")
		log.SetLevel(DebugLevel)
	})
	assert.Equal(t, OffLevel, log.Level())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"off":     OffLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestStdLoggerWritesAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, InfoLevel).With("HTTP")
	log.StdLogger().Printf("accept failed")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line, "[ERROR] [HTTP] accept failed"), line)
}
