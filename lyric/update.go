package lyric

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/samber/lo"
)

// ThermostatUpdate carries optional overrides. Unset fields keep the
// device's current changeable value.
type ThermostatUpdate struct {
	Mode                     *string  `json:"mode,omitempty"`
	HeatSetpoint             *float64 `json:"heatSetpoint,omitempty"`
	CoolSetpoint             *float64 `json:"coolSetpoint,omitempty"`
	AutoChangeoverActive     *bool    `json:"autoChangeoverActive,omitempty"`
	ThermostatSetpointStatus *string  `json:"thermostatSetpointStatus,omitempty"`
	NextPeriodTime           *string  `json:"nextPeriodTime,omitempty"`
}

type thermostatPayload struct {
	Mode                     string   `json:"mode"`
	HeatSetpoint             *float64 `json:"heatSetpoint"`
	CoolSetpoint             *float64 `json:"coolSetpoint"`
	ThermostatSetpointStatus string   `json:"thermostatSetpointStatus"`
	NextPeriodTime           string   `json:"nextPeriodTime,omitempty"`
	AutoChangeoverActive     *bool    `json:"autoChangeoverActive,omitempty"`
}

type fanPayload struct {
	Mode string `json:"mode"`
}

// mergeThermostat applies upd on top of the device's current values.
func mergeThermostat(device Device, upd ThermostatUpdate) thermostatPayload {
	current := device.ChangeableValues

	payload := thermostatPayload{
		Mode:         lo.FromPtrOr(upd.Mode, current.Mode),
		HeatSetpoint: lo.CoalesceOrEmpty(upd.HeatSetpoint, current.HeatSetpoint),
		CoolSetpoint: lo.CoalesceOrEmpty(upd.CoolSetpoint, current.CoolSetpoint),
	}

	switch {
	case upd.ThermostatSetpointStatus != nil:
		payload.ThermostatSetpointStatus = *upd.ThermostatSetpointStatus
	case current.Mode == StatusHoldUntil:
		payload.ThermostatSetpointStatus = StatusHoldTemporary
	default:
		payload.ThermostatSetpointStatus = current.ThermostatSetpointStatus
	}

	if payload.ThermostatSetpointStatus == StatusHoldUntil {
		payload.NextPeriodTime = lo.FromPtrOr(upd.NextPeriodTime, current.NextPeriodTime)
	}

	payload.AutoChangeoverActive = lo.CoalesceOrEmpty(upd.AutoChangeoverActive, current.AutoChangeoverActive)
	return payload
}

// UpdateThermostat posts the merged changeable values for device and returns
// the decoded response body.
func (c *Client) UpdateThermostat(ctx context.Context, location Location, device Device, upd ThermostatUpdate) (map[string]any, error) {
	if device.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	payload := mergeThermostat(device, upd)
	path := "/devices/thermostats/" + url.PathEscape(device.DeviceID)
	return c.postJSON(ctx, path, locationQuery(location), payload)
}

// UpdateFan sets the fan mode. An empty mode re-sends the device's current fan mode.
func (c *Client) UpdateFan(ctx context.Context, location Location, device Device, mode string) (map[string]any, error) {
	if device.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if mode == "" {
		mode = device.FanMode()
	}
	path := "/devices/thermostats/" + url.PathEscape(device.DeviceID) + "/fan"
	return c.postJSON(ctx, path, locationQuery(location), fanPayload{Mode: mode})
}

func locationQuery(location Location) url.Values {
	return url.Values{"locationId": {strconv.Itoa(location.LocationID)}}
}
