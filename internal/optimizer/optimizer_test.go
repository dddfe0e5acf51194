package optimizer

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/sensor"
)

func TestSettersRejectOutOfRange(t *testing.T) {
	p, err := NewPolicy(DefaultConfig())
	require.NoError(t, err)

	for _, v := range []float64{0, -0.1, 1.0001, math.NaN(), math.Inf(1)} {
		err := p.SetDutyCycle(v)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "duty %v", v)
		assert.Equal(t, "dutyCycle", verr.Field)

		err = p.SetAggregationFactor(v)
		require.True(t, errors.As(err, &verr), "aggregation %v", v)
		assert.Equal(t, "aggregationFactor", verr.Field)
	}
	assert.Equal(t, DefaultConfig(), p.Config())

	require.NoError(t, p.SetDutyCycle(0.25))
	require.NoError(t, p.SetAggregationFactor(1))
	assert.Equal(t, Config{DutyCycle: 0.25, AggregationFactor: 1}, p.Config())
}

func TestNewPolicyValidates(t *testing.T) {
	_, err := NewPolicy(Config{DutyCycle: 0, AggregationFactor: 1})
	assert.Error(t, err)
}

func TestConcurrentSetDutyCycle(t *testing.T) {
	p, err := NewPolicy(DefaultConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 2000; i++ {
				// Mix of valid and invalid writes.
				_ = p.SetDutyCycle(rng.Float64()*1.4 - 0.2)
				cfg := p.Config()
				if cfg.DutyCycle <= 0 || cfg.DutyCycle > 1 {
					t.Errorf("observed duty cycle %v", cfg.DutyCycle)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	assert.NoError(t, p.Config().Validate())
}

func TestParseGateMode(t *testing.T) {
	m, err := ParseGateMode("Scheduled")
	require.NoError(t, err)
	assert.Equal(t, GateScheduled, m)

	m, err = ParseGateMode("")
	require.NoError(t, err)
	assert.Equal(t, GateRandom, m)

	_, err = ParseGateMode("round-robin")
	assert.Error(t, err)
}

func countDecisions(g Gate, slot, n int, duty, aggregation float64) (active, transmitted int) {
	for i := 0; i < n; i++ {
		d := g.Decide(slot, duty, aggregation)
		if d.Active {
			active++
		}
		if d.Transmit {
			if !d.Active {
				panic("transmitted without being active")
			}
			transmitted++
		}
	}
	return active, transmitted
}

func TestRandomGateConverges(t *testing.T) {
	for _, duty := range []float64{0.2, 0.5, 0.8} {
		g := NewRandomGate(rand.New(rand.NewSource(11)))
		active, _ := countDecisions(g, 0, 10000, duty, 1)
		assert.InDelta(t, duty, float64(active)/10000, 0.05, "duty %v", duty)
	}

	g := NewRandomGate(rand.New(rand.NewSource(12)))
	active, transmitted := countDecisions(g, 0, 10000, 1, 0.3)
	require.Equal(t, 10000, active)
	assert.InDelta(t, 0.3, float64(transmitted)/float64(active), 0.05)
}

func TestRandomGateHalfDutyOverThousandTicks(t *testing.T) {
	g := NewRandomGate(rand.New(rand.NewSource(2024)))
	active, _ := countDecisions(g, 0, 1000, 0.5, 1)
	assert.GreaterOrEqual(t, active, 450)
	assert.LessOrEqual(t, active, 550)
}

func TestScheduledGateIsExact(t *testing.T) {
	g := NewScheduledGate(4)
	for slot := 0; slot < 4; slot++ {
		active, transmitted := countDecisions(g, slot, 1000, 0.5, 0.4)
		assert.InDelta(t, 500, active, 1, "slot %d", slot)
		assert.InDelta(t, 200, transmitted, 1, "slot %d", slot)
	}
}

func TestFullDutyAlwaysActive(t *testing.T) {
	gates := []Gate{NewRandomGate(rand.New(rand.NewSource(1))), NewScheduledGate(1)}
	for _, g := range gates {
		active, transmitted := countDecisions(g, 0, 500, 1, 1)
		assert.Equal(t, 500, active)
		assert.Equal(t, 500, transmitted)
	}
}

func readings(values map[string]float64) []sensor.Reading {
	var out []sensor.Reading
	for id, v := range values {
		out = append(out, sensor.Reading{SensorID: id, Type: sensor.Temperature, Value: v})
	}
	return out
}

func TestAdaptiveDeepensWhenQuiet(t *testing.T) {
	a := NewAdaptive()
	assert.Equal(t, 0.8, a.Cap())

	quiet := readings(map[string]float64{"t": 22})
	for i := 0; i < SleepTimeout-1; i++ {
		assert.False(t, a.Observe(quiet))
	}
	assert.True(t, a.Observe(quiet))
	assert.Equal(t, 0.6, a.Cap())

	for i := 0; i < 3*SleepTimeout; i++ {
		a.Observe(quiet)
	}
	assert.Equal(t, len(SleepLevels)-1, a.Level())
	assert.Equal(t, 0.2, a.Effective(0.9))
	assert.Equal(t, 0.1, a.Effective(0.1))

	// A 10% jump wakes the fleet.
	assert.True(t, a.Observe(readings(map[string]float64{"t": 24.2})))
	assert.Equal(t, 0, a.Level())
}

func TestAdaptiveMotionIsActivity(t *testing.T) {
	a := NewAdaptive()
	quiet := readings(map[string]float64{"t": 22})
	for i := 0; i < SleepTimeout+1; i++ {
		a.Observe(quiet)
	}
	require.Equal(t, 1, a.Level())

	a.Observe([]sensor.Reading{{SensorID: "pir", Type: sensor.Motion, Value: 1}})
	assert.Equal(t, 0, a.Level())
}
