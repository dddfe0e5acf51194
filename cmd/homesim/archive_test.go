package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/engine"
	"homesim/internal/logger"
	"homesim/internal/power"
	"homesim/internal/storage"
)

func TestRunArchiverSavesAndTrims(t *testing.T) {
	store, err := storage.NewBoltStorage(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	a := newRunArchiver(store, 2, logger.Discard())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a.RunCompleted(engine.RunReport{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			StoppedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Ticks:     uint64(10 * (i + 1)),
			Power:     power.Stats{BaselineWh: 1, OptimizedWh: 0.5, SavingsPct: 0.5},
		})
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var newest engine.RunReport
	require.NoError(t, json.Unmarshal(runs[0].Report, &newest))
	assert.Equal(t, uint64(30), newest.Ticks)
	assert.Equal(t, base.Add(2*time.Hour+time.Minute), runs[0].SavedAt.UTC())
}

type failingRunStore struct {
	saves, trims int
}

func (f *failingRunStore) SaveRun(time.Time, interface{}) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingRunStore) TrimRuns(int) error {
	f.trims++
	return nil
}

func TestRunArchiverSkipsTrimOnSaveError(t *testing.T) {
	f := &failingRunStore{}
	newRunArchiver(f, 5, logger.Discard()).RunCompleted(engine.RunReport{})
	assert.Equal(t, 1, f.saves)
	assert.Equal(t, 0, f.trims)
}

func TestPortOf(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "8080"},
		{"0.0.0.0:9000", "9000"},
		{"[::1]:7000", "7000"},
		{"8081", "8081"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, portOf(tt.addr))
		})
	}
}
