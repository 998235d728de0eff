package publish

import "github.com/joshp123/gohome-lyric/lyric"

type snapshot struct {
	LocationID         int      `json:"location_id"`
	LocationName       string   `json:"location_name"`
	DeviceID           string   `json:"device_id"`
	Name               string   `json:"name"`
	Alive              bool     `json:"alive"`
	Units              string   `json:"units,omitempty"`
	Mode               string   `json:"mode,omitempty"`
	OperationMode      string   `json:"operation_mode,omitempty"`
	FanMode            string   `json:"fan_mode,omitempty"`
	SetpointStatus     string   `json:"setpoint_status,omitempty"`
	NextPeriodTime     string   `json:"next_period_time,omitempty"`
	IndoorTemperature  *float64 `json:"indoor_temperature,omitempty"`
	OutdoorTemperature *float64 `json:"outdoor_temperature,omitempty"`
	IndoorHumidity     *float64 `json:"indoor_humidity,omitempty"`
	HeatSetpoint       *float64 `json:"heat_setpoint,omitempty"`
	CoolSetpoint       *float64 `json:"cool_setpoint,omitempty"`
}

func newSnapshot(loc lyric.Location, device lyric.Device) snapshot {
	values := device.ChangeableValues
	s := snapshot{
		LocationID:         loc.LocationID,
		LocationName:       loc.Name,
		DeviceID:           device.DeviceID,
		Name:               device.Name(),
		Alive:              device.IsAlive,
		Units:              device.Units,
		Mode:               device.Mode(),
		FanMode:            device.FanMode(),
		SetpointStatus:     values.ThermostatSetpointStatus,
		NextPeriodTime:     values.NextPeriodTime,
		IndoorTemperature:  device.IndoorTemperature,
		OutdoorTemperature: device.OutdoorTemperature,
		IndoorHumidity:     device.IndoorHumidity,
		HeatSetpoint:       values.HeatSetpoint,
		CoolSetpoint:       values.CoolSetpoint,
	}
	if device.OperationStatus != nil {
		s.OperationMode = device.OperationStatus.Mode
	}
	return s
}
