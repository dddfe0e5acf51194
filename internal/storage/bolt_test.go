package storage

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStorage {
	t.Helper()
	store, err := NewBoltStorage(filepath.Join(t.TempDir(), "homesim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPluginState(t *testing.T) {
	store := openTestStore(t)

	_, err := store.IsPluginEnabled("mqtt")
	assert.True(t, errors.Is(err, ErrPluginNotFound))

	require.NoError(t, store.EnablePlugin("mqtt"))
	enabled, err := store.IsPluginEnabled("mqtt")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, store.DisablePlugin("mqtt"))
	enabled, err = store.IsPluginEnabled("mqtt")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.EnablePlugin("kafka"))
	all, err := store.ListPlugins()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "mqtt", all["mqtt"].Name)
	assert.False(t, all["mqtt"].Enabled)
	assert.True(t, all["kafka"].Enabled)
	assert.False(t, all["kafka"].UpdatedAt.IsZero())
}

func TestSettings(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("engine", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("raw", func(t *testing.T) {
		require.NoError(t, store.Set("engine", "raw", []byte("abc")))
		v, err := store.Get("engine", "raw")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), v)
	})

	t.Run("bool", func(t *testing.T) {
		require.NoError(t, store.SetBool("mqtt", "discovery", true))
		v, err := store.GetBool("mqtt", "discovery")
		require.NoError(t, err)
		assert.True(t, v)

		require.NoError(t, store.Set("mqtt", "broken", []byte("maybe")))
		_, err = store.GetBool("mqtt", "broken")
		assert.Error(t, err)
	})

	t.Run("json", func(t *testing.T) {
		type opt struct {
			DutyCycle float64 `json:"dutyCycle"`
			Adaptive  bool    `json:"adaptive"`
		}
		require.NoError(t, store.SetJSON("engine", "optimization", opt{DutyCycle: 0.4, Adaptive: true}))

		var got opt
		require.NoError(t, store.GetJSON("engine", "optimization", &got))
		assert.Equal(t, opt{DutyCycle: 0.4, Adaptive: true}, got)
	})

	t.Run("namespaces are separate", func(t *testing.T) {
		require.NoError(t, store.Set("a", "k", []byte("1")))
		_, err := store.Get("b", "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set("engine", "gone", []byte("x")))
		require.NoError(t, store.Delete("engine", "gone"))
		_, err := store.Get("engine", "gone")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, store.Delete("nowhere", "gone"))
	})
}

func TestRunArchive(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRun(base.Add(time.Duration(i)*time.Minute), map[string]int{"ticks": i}))
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 5)

	var first map[string]int
	require.NoError(t, json.Unmarshal(runs[0].Report, &first))
	assert.Equal(t, 4, first["ticks"], "newest first")
	assert.True(t, runs[0].SavedAt.Equal(base.Add(4*time.Minute)))

	limited, err := store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, store.TrimRuns(3))
	runs, err = store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	var oldest map[string]int
	require.NoError(t, json.Unmarshal(runs[2].Report, &oldest))
	assert.Equal(t, 2, oldest["ticks"])

	require.NoError(t, store.TrimRuns(10))
	runs, err = store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSaveRunSameTimestamp(t *testing.T) {
	store := openTestStore(t)
	at := time.Now()

	require.NoError(t, store.SaveRun(at, "a"))
	require.NoError(t, store.SaveRun(at, "b"))

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.NotEqual(t, runs[0].Key, runs[1].Key)
	assert.JSONEq(t, `"b"`, string(runs[0].Report))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homesim.db")

	store, err := NewBoltStorage(path)
	require.NoError(t, err)
	require.NoError(t, store.EnablePlugin("kafka"))
	require.NoError(t, store.SaveRun(time.Now(), "r"))
	require.NoError(t, store.Close())

	store, err = NewBoltStorage(path)
	require.NoError(t, err)
	defer store.Close()

	enabled, err := store.IsPluginEnabled("kafka")
	require.NoError(t, err)
	assert.True(t, enabled)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
