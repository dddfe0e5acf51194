package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr())
	assert.Equal(t, DefaultTickInterval, cfg.TickInterval())
	assert.Equal(t, 1.0, cfg.DutyCycle())
	assert.Equal(t, "random", cfg.GateMode())
	assert.True(t, cfg.Autostart())
	assert.Empty(t, cfg.KafkaBrokers())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	values, err := ParseEnvFile(f)
	require.NoError(t, err)
	assert.Equal(t, "1000", values[EnvTickIntervalMS])
	assert.Equal(t, "homesim", values[EnvMQTTPrefix])
}

func TestLoadAppliesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"# local overrides",
		"HOMESIM_ADDR=127.0.0.1:9000",
		"HOMESIM_TICK_INTERVAL_MS=250",
		"HOMESIM_SEED=7",
		"HOMESIM_DUTY_CYCLE=0.5",
		"HOMESIM_AGGREGATION_FACTOR=0.25",
		"HOMESIM_GATE_MODE=Scheduled",
		"HOMESIM_ADAPTIVE=yes",
		"HOMESIM_AUTOSTART=false",
		`HOMESIM_MQTT_PASSWORD="s3cret pass"`,
		"export HOMESIM_KAFKA_BROKERS=k1:9092, k2:9092",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, int64(7), cfg.Seed())
	assert.Equal(t, 0.5, cfg.DutyCycle())
	assert.Equal(t, 0.25, cfg.AggregationFactor())
	assert.Equal(t, "scheduled", cfg.GateMode())
	assert.True(t, cfg.Adaptive())
	assert.False(t, cfg.Autostart())
	assert.Equal(t, "s3cret pass", cfg.MQTTPassword())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic())

	assert.NotContains(t, cfg.String(), "s3cret")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"duty cycle above one", "HOMESIM_DUTY_CYCLE=1.5"},
		{"zero aggregation", "HOMESIM_AGGREGATION_FACTOR=0"},
		{"unknown gate", "HOMESIM_GATE_MODE=roundrobin"},
		{"tick too short", "HOMESIM_TICK_INTERVAL_MS=1"},
		{"bad port", "HOMESIM_ADDR=:70000"},
		{"bad log level", "HOMESIM_LOG_LEVEL=loud"},
		{"empty history", "HOMESIM_HISTORY_SIZE=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			require.NoError(t, os.WriteFile(path, []byte(tt.line+"\n"), 0600))

			_, err := Load(path)
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestSetLogLevelPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetLogLevel("DEBUG"))
	assert.Equal(t, "debug", cfg.LogLevel())

	assert.Error(t, cfg.SetLogLevel("verbose"))
	assert.Equal(t, "debug", cfg.LogLevel())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", reloaded.LogLevel())
}

func TestReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, WriteEnvFile(path, map[string]string{EnvDutyCycle: "0.3"}))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 0.3, cfg.DutyCycle())
	assert.Equal(t, DefaultAddr, cfg.Addr())
}

func TestParseEnvFile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "comments and blanks",
			input: "# c\n\nA=1\n  B = two  \n",
			want:  map[string]string{"A": "1", "B": "two"},
		},
		{
			name:  "quoted values",
			input: "A=\"x # y\"\nB='single'\n",
			want:  map[string]string{"A": "x # y", "B": "single"},
		},
		{
			name:  "empty value",
			input: "A=\n",
			want:  map[string]string{"A": ""},
		},
		{
			name:    "missing equals",
			input:   "JUSTAKEY\n",
			wantErr: true,
		},
		{
			name:    "empty key",
			input:   "=value\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvFile(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteEnvFileQuotesWhenNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteEnvFile(path, map[string]string{
		"B": "plain",
		"A": "has space",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Less(t, strings.Index(text, "A="), strings.Index(text, "B="))
	assert.Contains(t, text, `A="has space"`)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	values, err := ParseEnvFile(f)
	require.NoError(t, err)
	assert.Equal(t, "has space", values["A"])
}
