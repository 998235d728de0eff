package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/gohome-lyric/lyric"
)

// Backend is the subset of lyric.Client the service drives.
type Backend interface {
	GetLocations(ctx context.Context) ([]lyric.Location, error)
	GetDevices(ctx context.Context, locationID int) ([]lyric.Device, error)
	UpdateThermostat(ctx context.Context, location lyric.Location, device lyric.Device, upd lyric.ThermostatUpdate) (map[string]any, error)
	UpdateFan(ctx context.Context, location lyric.Location, device lyric.Device, mode string) (map[string]any, error)
}

// Service implements LyricServer on top of a Backend.
type Service struct {
	backend Backend
	logger  *zap.Logger
}

// New returns a Service; a nil backend answers every call with FailedPrecondition.
func New(backend Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, logger: logger}
}

// Register adds the service to a gRPC server.
func Register(server *grpc.Server, svc LyricServer) {
	server.RegisterService(&ServiceDesc, svc)
}

func (s *Service) ListLocations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "lyric client not configured")
	}
	locations, err := s.backend.GetLocations(ctx)
	if err != nil {
		return nil, s.statusError("list locations", err)
	}

	items := make([]any, 0, len(locations))
	for _, loc := range locations {
		items = append(items, locationSummary(loc))
	}
	return newStruct(map[string]any{"locations": items})
}

func (s *Service) ListDevices(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "lyric client not configured")
	}
	locationID, err := requiredInt(in, "location_id")
	if err != nil {
		return nil, err
	}
	devices, err := s.backend.GetDevices(ctx, locationID)
	if err != nil {
		return nil, s.statusError("list devices", err)
	}

	items := make([]any, 0, len(devices))
	for _, device := range devices {
		items = append(items, deviceSummary(device))
	}
	return newStruct(map[string]any{"devices": items})
}

func (s *Service) GetDeviceState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	location, device, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	state := map[string]any{}
	if len(device.Raw) > 0 {
		if err := json.Unmarshal(device.Raw, &state); err != nil {
			return nil, status.Errorf(codes.Internal, "decode device state: %v", err)
		}
	}
	return newStruct(map[string]any{
		"location_id": location.LocationID,
		"device":      state,
	})
}

func (s *Service) UpdateThermostat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := &overrides{in: in}
	upd := lyric.ThermostatUpdate{
		Mode:                     fields.str("mode"),
		HeatSetpoint:             fields.number("heat_setpoint"),
		CoolSetpoint:             fields.number("cool_setpoint"),
		AutoChangeoverActive:     fields.boolean("auto_changeover_active"),
		ThermostatSetpointStatus: fields.str("thermostat_setpoint_status"),
		NextPeriodTime:           fields.str("next_period_time"),
	}
	if fields.err != nil {
		return nil, fields.err
	}

	location, device, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	resp, err := s.backend.UpdateThermostat(ctx, location, device, upd)
	if err != nil {
		return nil, s.statusError("update thermostat", err)
	}
	s.logger.Info("thermostat updated",
		zap.Int("location_id", location.LocationID),
		zap.String("device_id", device.DeviceID))
	return newStruct(map[string]any{"response": resp})
}

func (s *Service) UpdateFan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := &overrides{in: in}
	mode := lo.FromPtr(fields.str("mode"))
	if fields.err != nil {
		return nil, fields.err
	}

	location, device, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	if mode == "" && device.FanMode() == "" {
		return nil, status.Error(codes.InvalidArgument, "mode is required; device reports no fan mode")
	}
	if allowed := device.FanModes(); mode != "" && len(allowed) > 0 && !lo.Contains(allowed, mode) {
		return nil, status.Errorf(codes.InvalidArgument, "fan mode %q not in %v", mode, allowed)
	}

	resp, err := s.backend.UpdateFan(ctx, location, device, mode)
	if err != nil {
		return nil, s.statusError("update fan", err)
	}
	s.logger.Info("fan updated",
		zap.Int("location_id", location.LocationID),
		zap.String("device_id", device.DeviceID),
		zap.String("mode", mode))
	return newStruct(map[string]any{"response": resp})
}

// resolve fetches the device fresh so updates merge against current values.
func (s *Service) resolve(ctx context.Context, in *structpb.Struct) (lyric.Location, lyric.Device, error) {
	if s.backend == nil {
		return lyric.Location{}, lyric.Device{}, status.Error(codes.FailedPrecondition, "lyric client not configured")
	}
	locationID, err := requiredInt(in, "location_id")
	if err != nil {
		return lyric.Location{}, lyric.Device{}, err
	}
	fields := &overrides{in: in}
	deviceID := lo.FromPtr(fields.str("device_id"))
	if fields.err != nil {
		return lyric.Location{}, lyric.Device{}, fields.err
	}
	if deviceID == "" {
		return lyric.Location{}, lyric.Device{}, status.Error(codes.InvalidArgument, "device_id is required")
	}

	devices, err := s.backend.GetDevices(ctx, locationID)
	if err != nil {
		return lyric.Location{}, lyric.Device{}, s.statusError("get devices", err)
	}
	location := lyric.Location{LocationID: locationID, Devices: devices}
	device, ok := location.Device(deviceID)
	if !ok {
		return lyric.Location{}, lyric.Device{}, status.Errorf(codes.NotFound, "device %s not found in location %d", deviceID, locationID)
	}
	return location, device, nil
}

func (s *Service) statusError(op string, err error) error {
	switch {
	case errors.Is(err, lyric.ErrAuthentication):
		return status.Errorf(codes.Unauthenticated, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", op, err)
	}
	var apiErr lyric.HTTPStatusError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	}
	s.logger.Warn("lyric call failed", zap.String("op", op), zap.Error(err))
	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

func locationSummary(loc lyric.Location) map[string]any {
	devices := make([]any, 0, len(loc.Devices))
	for _, device := range loc.Devices {
		devices = append(devices, deviceSummary(device))
	}
	return map[string]any{
		"location_id": loc.LocationID,
		"name":        loc.Name,
		"country":     loc.Country,
		"devices":     devices,
	}
}

func deviceSummary(device lyric.Device) map[string]any {
	values := device.ChangeableValues
	out := map[string]any{
		"device_id":       device.DeviceID,
		"name":            device.Name(),
		"device_class":    device.DeviceClass,
		"is_alive":        device.IsAlive,
		"mode":            device.Mode(),
		"fan_mode":        device.FanMode(),
		"setpoint_status": values.ThermostatSetpointStatus,
		"units":           device.Units,
	}
	putNumber(out, "indoor_temperature", device.IndoorTemperature)
	putNumber(out, "outdoor_temperature", device.OutdoorTemperature)
	putNumber(out, "indoor_humidity", device.IndoorHumidity)
	putNumber(out, "heat_setpoint", values.HeatSetpoint)
	putNumber(out, "cool_setpoint", values.CoolSetpoint)
	return out
}

func putNumber(out map[string]any, key string, value *float64) {
	if value != nil {
		out[key] = *value
	}
}

// newStruct round-trips through JSON so ints, nested maps and slices of
// structs become valid structpb values.
func newStruct(in map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func requiredInt(in *structpb.Struct, key string) (int, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != float64(int(n.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

// overrides reads optional typed fields and keeps the first type mismatch.
// A missing or null field reads as nil.
type overrides struct {
	in  *structpb.Struct
	err error
}

func (o *overrides) field(key, kind string, match func(*structpb.Value) bool) *structpb.Value {
	v, ok := o.in.GetFields()[key]
	if !ok {
		return nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}
	if !match(v) {
		if o.err == nil {
			o.err = status.Errorf(codes.InvalidArgument, "%s must be a %s", key, kind)
		}
		return nil
	}
	return v
}

func (o *overrides) str(key string) *string {
	v := o.field(key, "string", func(v *structpb.Value) bool {
		_, ok := v.GetKind().(*structpb.Value_StringValue)
		return ok
	})
	if v == nil {
		return nil
	}
	return lo.ToPtr(v.GetStringValue())
}

func (o *overrides) number(key string) *float64 {
	v := o.field(key, "number", func(v *structpb.Value) bool {
		_, ok := v.GetKind().(*structpb.Value_NumberValue)
		return ok
	})
	if v == nil {
		return nil
	}
	return lo.ToPtr(v.GetNumberValue())
}

func (o *overrides) boolean(key string) *bool {
	v := o.field(key, "bool", func(v *structpb.Value) bool {
		_, ok := v.GetKind().(*structpb.Value_BoolValue)
		return ok
	})
	if v == nil {
		return nil
	}
	return lo.ToPtr(v.GetBoolValue())
}

var _ LyricServer = (*Service)(nil)
