package charging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/tariff"
)

type failingStore struct{}

func (failingStore) Get(string, string) (string, bool, error) { return "", false, errors.New("flash busy") }
func (failingStore) Set(string, string, string) error         { return errors.New("flash busy") }

func TestSettingsDefaults(t *testing.T) {
	s := NewSettings(kv.NewMemoryStore(), DefaultDefaults(), logger.NopLogger{})
	assert.Equal(t, 80, s.TargetSOC())
	assert.Equal(t, "23:30-05:30", s.Window().String())
	assert.Equal(t, tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292}, s.Tariff())
	p := s.RateProfile()
	assert.Equal(t, 1.8, p.NameplateKW)
	assert.Zero(t, p.MeasuredKW)
	assert.True(t, p.UseMeasured)
	assert.True(t, s.ReadyBy().IsMidnight())
	assert.True(t, s.Enabled())
}

func TestSettingsMalformedFallBack(t *testing.T) {
	store := kv.NewMemoryStore()
	for k, v := range map[string]string{
		KeyTargetSOC:       "lots",
		KeyCheapStart:      "9pm",
		KeyCheapRate:       "-0.1",
		KeyMeasuredRate:    "99",
		KeyUseMeasuredRate: "perhaps",
		KeyEnabled:         "0",
		KeySOHOverride:     "150",
	} {
		require.NoError(t, store.Set(Namespace, k, v))
	}
	s := NewSettings(store, DefaultDefaults(), logger.NopLogger{})
	assert.Equal(t, 80, s.TargetSOC())
	assert.Equal(t, clock.TimeOfDay{Hour: 23, Minute: 30}, s.Window().Start)
	assert.Equal(t, 0.07, s.Tariff().CheapRate)
	assert.Zero(t, s.RateProfile().MeasuredKW)
	assert.True(t, s.RateProfile().UseMeasured)
	assert.False(t, s.Enabled())
	_, soh := s.BatteryOverrides()
	assert.Zero(t, soh)
}

func TestSettingsStoreFailure(t *testing.T) {
	s := NewSettings(failingStore{}, DefaultDefaults(), logger.NopLogger{})
	assert.Equal(t, 80, s.TargetSOC())
	assert.Error(t, s.SetTargetSOC(90))
	assert.NotErrorIs(t, s.SetTargetSOC(90), ErrInvalidArgument)
}

func TestSettingsSetters(t *testing.T) {
	store := kv.NewMemoryStore()
	s := NewSettings(store, DefaultDefaults(), logger.NopLogger{})

	require.NoError(t, s.SetMeasuredKW(1.0666))
	v, _, _ := store.Get(Namespace, KeyMeasuredRate)
	assert.Equal(t, "1.07", v)
	assert.InDelta(t, 1.07*0.7+1.8*0.3, s.RateProfile().EffectiveKW(), 1e-9)

	require.NoError(t, s.SetWindow(clock.Window{Start: clock.TimeOfDay{Hour: 0, Minute: 30}, End: clock.TimeOfDay{Hour: 4, Minute: 30}}))
	v, _, _ = store.Get(Namespace, KeyCheapStart)
	assert.Equal(t, "00:30", v)

	assert.ErrorIs(t, s.SetTargetSOC(19), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetWindow(clock.Window{Start: clock.TimeOfDay{Hour: 24}}), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetTariff(tariff.Tariff{CheapRate: -1}), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetChargerKW(0), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetMeasuredKW(0.3), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetReadyBy(clock.TimeOfDay{Minute: 60}), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetBatteryOverride(-1), ErrInvalidArgument)
	assert.ErrorIs(t, s.SetSOHOverride(101), ErrInvalidArgument)
}
