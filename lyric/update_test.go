package lyric

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice() Device {
	return Device{
		DeviceID: "LCC-1",
		ChangeableValues: ChangeableValues{
			Mode:                     "Heat",
			HeatSetpoint:             lo.ToPtr(20.0),
			CoolSetpoint:             lo.ToPtr(25.0),
			ThermostatSetpointStatus: StatusNoHold,
			NextPeriodTime:           "18:00:00",
		},
		Settings: deviceSettings{Fan: &fanSettings{}},
	}
}

func TestMergeThermostatFallsBack(t *testing.T) {
	payload := mergeThermostat(testDevice(), ThermostatUpdate{})

	assert.Equal(t, "Heat", payload.Mode)
	assert.Equal(t, 20.0, *payload.HeatSetpoint)
	assert.Equal(t, 25.0, *payload.CoolSetpoint)
	assert.Equal(t, StatusNoHold, payload.ThermostatSetpointStatus)
	assert.Empty(t, payload.NextPeriodTime)
	assert.Nil(t, payload.AutoChangeoverActive)
}

func TestMergeThermostatOverridesWin(t *testing.T) {
	device := testDevice()
	device.ChangeableValues.AutoChangeoverActive = lo.ToPtr(true)

	payload := mergeThermostat(device, ThermostatUpdate{
		Mode:                     lo.ToPtr("Cool"),
		HeatSetpoint:             lo.ToPtr(18.5),
		CoolSetpoint:             lo.ToPtr(23.0),
		AutoChangeoverActive:     lo.ToPtr(false),
		ThermostatSetpointStatus: lo.ToPtr(StatusPermanentHold),
	})

	assert.Equal(t, "Cool", payload.Mode)
	assert.Equal(t, 18.5, *payload.HeatSetpoint)
	assert.Equal(t, 23.0, *payload.CoolSetpoint)
	assert.Equal(t, StatusPermanentHold, payload.ThermostatSetpointStatus)
	require.NotNil(t, payload.AutoChangeoverActive)
	assert.False(t, *payload.AutoChangeoverActive)
}

func TestMergeThermostatPerField(t *testing.T) {
	device := testDevice()

	tests := map[string]struct {
		upd   ThermostatUpdate
		check func(t *testing.T, p thermostatPayload)
	}{
		"mode only": {
			upd: ThermostatUpdate{Mode: lo.ToPtr("Off")},
			check: func(t *testing.T, p thermostatPayload) {
				assert.Equal(t, "Off", p.Mode)
				assert.Equal(t, 20.0, *p.HeatSetpoint)
				assert.Equal(t, 25.0, *p.CoolSetpoint)
			},
		},
		"heat only": {
			upd: ThermostatUpdate{HeatSetpoint: lo.ToPtr(21.0)},
			check: func(t *testing.T, p thermostatPayload) {
				assert.Equal(t, "Heat", p.Mode)
				assert.Equal(t, 21.0, *p.HeatSetpoint)
				assert.Equal(t, 25.0, *p.CoolSetpoint)
			},
		},
		"cool only keeps heat": {
			upd: ThermostatUpdate{CoolSetpoint: lo.ToPtr(26.0)},
			check: func(t *testing.T, p thermostatPayload) {
				assert.Equal(t, 20.0, *p.HeatSetpoint)
				assert.Equal(t, 26.0, *p.CoolSetpoint)
			},
		},
		"auto changeover override": {
			upd: ThermostatUpdate{AutoChangeoverActive: lo.ToPtr(true)},
			check: func(t *testing.T, p thermostatPayload) {
				require.NotNil(t, p.AutoChangeoverActive)
				assert.True(t, *p.AutoChangeoverActive)
			},
		},
		"hold until sends next period": {
			upd: ThermostatUpdate{ThermostatSetpointStatus: lo.ToPtr(StatusHoldUntil)},
			check: func(t *testing.T, p thermostatPayload) {
				assert.Equal(t, StatusHoldUntil, p.ThermostatSetpointStatus)
				assert.Equal(t, "18:00:00", p.NextPeriodTime)
			},
		},
		"next period override": {
			upd: ThermostatUpdate{
				ThermostatSetpointStatus: lo.ToPtr(StatusHoldUntil),
				NextPeriodTime:           lo.ToPtr("22:15:00"),
			},
			check: func(t *testing.T, p thermostatPayload) {
				assert.Equal(t, "22:15:00", p.NextPeriodTime)
			},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt.check(t, mergeThermostat(device, tt.upd))
		})
	}
}

func TestMergeThermostatHoldModeForcesTemporaryHold(t *testing.T) {
	device := testDevice()
	device.ChangeableValues.Mode = StatusHoldUntil
	device.ChangeableValues.ThermostatSetpointStatus = StatusPermanentHold

	payload := mergeThermostat(device, ThermostatUpdate{})
	assert.Equal(t, StatusHoldTemporary, payload.ThermostatSetpointStatus)
	assert.Empty(t, payload.NextPeriodTime)

	payload = mergeThermostat(device, ThermostatUpdate{ThermostatSetpointStatus: lo.ToPtr(StatusNoHold)})
	assert.Equal(t, StatusNoHold, payload.ThermostatSetpointStatus)
}

func TestUpdateThermostatRequest(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devices/thermostats/LCC-1", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("apikey"))
		assert.Equal(t, "99", r.URL.Query().Get("locationId"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	resp, err := client.UpdateThermostat(context.Background(), Location{LocationID: 99}, testDevice(), ThermostatUpdate{
		HeatSetpoint: lo.ToPtr(19.0),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ok"}, resp)

	assert.Equal(t, "Heat", body["mode"])
	assert.Equal(t, 19.0, body["heatSetpoint"])
	assert.Equal(t, 25.0, body["coolSetpoint"])
	assert.Equal(t, StatusNoHold, body["thermostatSetpointStatus"])
	assert.NotContains(t, body, "autoChangeoverActive")
	assert.NotContains(t, body, "nextPeriodTime")
}

func TestUpdateThermostatEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := client.UpdateThermostat(context.Background(), Location{LocationID: 1}, testDevice(), ThermostatUpdate{})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Empty(t, resp)
}

func TestUpdateThermostatRequiresDeviceID(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.UpdateThermostat(context.Background(), Location{}, Device{}, ThermostatUpdate{})
	assert.Error(t, err)
}

func TestUpdateFan(t *testing.T) {
	tests := map[string]struct {
		mode string
		want string
	}{
		"explicit mode":      {mode: "On", want: "On"},
		"falls back to fan":  {mode: "", want: "Circulate"},
		"explicit same mode": {mode: "Circulate", want: "Circulate"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var got fanPayload
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/devices/thermostats/LCC-1/fan", r.URL.Path)
				assert.Equal(t, "5", r.URL.Query().Get("locationId"))
				data, _ := io.ReadAll(r.Body)
				assert.NoError(t, json.Unmarshal(data, &got))
				_, _ = io.WriteString(w, `{}`)
			})

			device := testDevice()
			device.Settings.Fan.ChangeableValues.Mode = "Circulate"

			_, err := client.UpdateFan(context.Background(), Location{LocationID: 5}, device, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Mode)
		})
	}
}

func TestUpdateFanError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.UpdateFan(context.Background(), Location{LocationID: 5}, testDevice(), "On")
	assert.ErrorIs(t, err, ErrAuthentication)
}
