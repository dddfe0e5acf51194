package mqttbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/engine"
	"homesim/internal/logger"
	"homesim/internal/mqtt"
	"homesim/internal/plugins"
	"homesim/internal/sensor"
	"homesim/internal/storage"
)

type sink struct {
	mu     sync.Mutex
	topics []string
	bodies []string
}

func (s *sink) add(topic string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	switch v := payload.(type) {
	case []byte:
		s.bodies = append(s.bodies, string(v))
	case string:
		s.bodies = append(s.bodies, v)
	default:
		s.bodies = append(s.bodies, "")
	}
}

func (s *sink) PublishWithQoS(topic string, _ byte, _ bool, payload interface{}) error {
	s.add(topic, payload)
	return nil
}

func (s *sink) PublishRaw(topic string, payload interface{}, _ bool) error {
	s.add(topic, payload)
	return nil
}

func (s *sink) IsConnected() bool { return true }

func (s *sink) GetConfig() mqtt.Config { return mqtt.Config{Prefix: "homesim"} }

func (s *sink) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.topics {
		if strings.HasPrefix(t, prefix) {
			n++
		}
	}
	return n
}

func (s *sink) last(topic string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.topics) - 1; i >= 0; i-- {
		if s.topics[i] == topic {
			return s.bodies[i]
		}
	}
	return ""
}

func setup(t *testing.T) (*Plugin, *engine.Engine, *sink, *plugins.PluginDependencies) {
	t.Helper()

	opts := engine.DefaultOptions()
	opts.Manual = true
	opts.Seed = 7
	opts.Logger = logger.Discard()
	e, err := engine.New(sensor.DefaultFleet(), opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	store, err := storage.NewBoltStorage(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := &sink{}
	deps := &plugins.PluginDependencies{
		Engine:        e,
		Logger:        logger.Discard(),
		Storage:       store,
		MQTTPublisher: mqtt.NewPublisher(s, logger.Discard()),
		MQTTDiscovery: mqtt.NewDiscoveryManager(s, logger.Discard(), store, PluginName),
	}

	p := New()
	require.NoError(t, p.Init(context.Background(), deps))
	return p, e, s, deps
}

func TestInitRequiresMQTT(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.Logger = logger.Discard()
	e, err := engine.New(sensor.DefaultFleet(), opts)
	require.NoError(t, err)
	defer e.Close()

	err = New().Init(context.Background(), &plugins.PluginDependencies{Engine: e, Logger: logger.Discard()})
	assert.ErrorContains(t, err, "MQTT is not configured")
}

func TestForwardsEvents(t *testing.T) {
	p, e, s, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, "online", s.last(mqtt.AvailabilityTopic))

	_, err := e.Start()
	require.NoError(t, err)
	require.NoError(t, e.Step(2))

	require.Eventually(t, func() bool {
		return s.count(mqtt.StatsTopic) >= 2 && s.count("sensor/") > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, "offline", s.last(mqtt.AvailabilityTopic))
	assert.Positive(t, p.forwarded.Load())
}

func TestSettingsDisableReadings(t *testing.T) {
	p, e, s, deps := setup(t)
	ctx := context.Background()

	body := strings.NewReader(`{"publishReadings":false,"publishStats":true}`)
	rec := httptest.NewRecorder()
	p.handleUpdateSettings(rec, httptest.NewRequest(http.MethodPost, "/api/plugins/mqtt/settings", body))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := deps.Storage.GetBool(PluginName, settingPublishReadings)
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, p.Start(ctx))
	_, err = e.Start()
	require.NoError(t, err)
	require.NoError(t, e.Step(3))

	require.Eventually(t, func() bool {
		return s.count(mqtt.StatsTopic) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop(ctx))

	assert.Zero(t, s.count("sensor/"))

	rec = httptest.NewRecorder()
	p.handleGetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/plugins/mqtt/settings", nil))
	var got Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, Settings{PublishReadings: false, PublishStats: true}, got)
}

func TestSettingsRejectBadBody(t *testing.T) {
	p, _, _, _ := setup(t)
	rec := httptest.NewRecorder()
	p.handleUpdateSettings(rec, httptest.NewRequest(http.MethodPost, "/api/plugins/mqtt/settings", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndDiscovery(t *testing.T) {
	p, _, s, _ := setup(t)

	rec := httptest.NewRecorder()
	p.handleRepublishDiscovery(rec, httptest.NewRequest(http.MethodPost, "/api/plugins/mqtt/discovery", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(sensor.DefaultFleet()), s.count(mqtt.DiscoveryPrefix+"/"))

	rec = httptest.NewRecorder()
	p.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/plugins/mqtt/status", nil))
	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Configured)
	assert.False(t, status.Connected, "no real client")
	assert.Equal(t, len(sensor.DefaultFleet()), status.Sensors)
}

func TestRoutes(t *testing.T) {
	routes := New().Routes()
	require.NotEmpty(t, routes)
	for _, r := range routes {
		assert.True(t, strings.HasPrefix(r.Path, "/api/plugins/mqtt/"), r.Path)
		assert.NotNil(t, r.Handler)
	}
}
