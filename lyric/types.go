package lyric

import (
	"encoding/json"
	"fmt"
)

// Setpoint status values accepted by the thermostat endpoint.
const (
	StatusNoHold        = "NoHold"
	StatusTemporaryHold = "TemporaryHold"
	StatusPermanentHold = "PermanentHold"
	StatusHoldUntil     = "HoldUntil"
	StatusHoldTemporary = "HoldTemporary"
)

// ChangeableValues is the mutable subset of a device's state.
type ChangeableValues struct {
	Mode                     string   `json:"mode,omitempty"`
	AutoChangeoverActive     *bool    `json:"autoChangeoverActive,omitempty"`
	HeatSetpoint             *float64 `json:"heatSetpoint,omitempty"`
	CoolSetpoint             *float64 `json:"coolSetpoint,omitempty"`
	ThermostatSetpointStatus string   `json:"thermostatSetpointStatus,omitempty"`
	NextPeriodTime           string   `json:"nextPeriodTime,omitempty"`
	HeatCoolMode             string   `json:"heatCoolMode,omitempty"`
}

// OperationStatus reports what the equipment is doing right now.
type OperationStatus struct {
	Mode                  string `json:"mode"`
	FanRequest            bool   `json:"fanRequest"`
	CirculationFanRequest bool   `json:"circulationFanRequest"`
}

type fanSettings struct {
	AllowedModes     []string `json:"allowedModes"`
	ChangeableValues struct {
		Mode string `json:"mode"`
	} `json:"changeableValues"`
}

type deviceSettings struct {
	Fan *fanSettings `json:"fan"`
}

// Device is a snapshot of a single thermostat as returned by the API.
type Device struct {
	DeviceID              string           `json:"deviceID"`
	DeviceClass           string           `json:"deviceClass"`
	DeviceType            string           `json:"deviceType"`
	DeviceName            string           `json:"name"`
	UserDefinedDeviceName string           `json:"userDefinedDeviceName"`
	MacID                 string           `json:"macID"`
	IsAlive               bool             `json:"isAlive"`
	Units                 string           `json:"units"`
	IndoorTemperature     *float64         `json:"indoorTemperature"`
	OutdoorTemperature    *float64         `json:"outdoorTemperature"`
	IndoorHumidity        *float64         `json:"indoorHumidity"`
	MinHeatSetpoint       *float64         `json:"minHeatSetpoint"`
	MaxHeatSetpoint       *float64         `json:"maxHeatSetpoint"`
	MinCoolSetpoint       *float64         `json:"minCoolSetpoint"`
	MaxCoolSetpoint       *float64         `json:"maxCoolSetpoint"`
	AllowedModes          []string         `json:"allowedModes"`
	ChangeableValues      ChangeableValues `json:"changeableValues"`
	OperationStatus       *OperationStatus `json:"operationStatus"`
	Settings              deviceSettings   `json:"settings"`

	// Raw is the device object exactly as the API returned it.
	Raw json.RawMessage `json:"-"`
}

// Name returns the user-assigned name, falling back to the factory name.
func (d Device) Name() string {
	if d.UserDefinedDeviceName != "" {
		return d.UserDefinedDeviceName
	}
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return d.DeviceID
}

// Mode returns the current system mode.
func (d Device) Mode() string {
	return d.ChangeableValues.Mode
}

// FanMode returns the current fan mode, or "" if the device has no fan settings.
func (d Device) FanMode() string {
	if d.Settings.Fan == nil {
		return ""
	}
	return d.Settings.Fan.ChangeableValues.Mode
}

// FanModes lists the fan modes the device accepts.
func (d Device) FanModes() []string {
	if d.Settings.Fan == nil {
		return nil
	}
	return d.Settings.Fan.AllowedModes
}

func (d *Device) UnmarshalJSON(data []byte) error {
	type plain Device
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode device: %w", err)
	}
	out.Raw = append(json.RawMessage(nil), data...)
	*d = Device(out)
	return nil
}

// Location is a snapshot of a location and the devices installed there.
type Location struct {
	LocationID int      `json:"locationID"`
	Name       string   `json:"name"`
	Country    string   `json:"country"`
	Zipcode    string   `json:"zipcode"`
	TimeZone   string   `json:"timeZone"`
	Devices    []Device `json:"devices"`

	Raw json.RawMessage `json:"-"`
}

// Device returns the device with the given id.
func (l Location) Device(deviceID string) (Device, bool) {
	for _, device := range l.Devices {
		if device.DeviceID == deviceID {
			return device, true
		}
	}
	return Device{}, false
}

func (l *Location) UnmarshalJSON(data []byte) error {
	type plain Location
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	if out.Devices == nil {
		out.Devices = []Device{}
	}
	out.Raw = append(json.RawMessage(nil), data...)
	*l = Location(out)
	return nil
}
