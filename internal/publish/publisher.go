package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-lyric/lyric"
)

const commandTimeout = 15 * time.Second

// Commander is the write side of lyric.Client.
type Commander interface {
	GetDevices(ctx context.Context, locationID int) ([]lyric.Device, error)
	UpdateThermostat(ctx context.Context, location lyric.Location, device lyric.Device, upd lyric.ThermostatUpdate) (map[string]any, error)
	UpdateFan(ctx context.Context, location lyric.Location, device lyric.Device, mode string) (map[string]any, error)
}

type Config struct {
	BrokerURL string
	ClientID  string
	BaseTopic string
	QoS       byte
	Retain    bool
	Username  string
	Password  string
}

type route struct {
	locationID int
	deviceID   string
}

// Publisher mirrors device snapshots to MQTT and turns set commands into
// Lyric updates. Topics are {base}/{location}/{device}/state and
// {base}/{location}/{device}/set/{fan|thermostat}.
type Publisher struct {
	cfg      Config
	commands Commander
	logger   *zap.Logger

	client mqtt.Client

	mu     sync.Mutex
	routes map[string]route
	last   map[string][]byte
}

func New(cfg Config, commands Commander, logger *zap.Logger) (*Publisher, error) {
	if commands == nil {
		return nil, errors.New("mqtt: commander is required")
	}
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "lyric"
	}
	cfg.BaseTopic = strings.TrimRight(cfg.BaseTopic, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "lyric-" + uuid.NewString()
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		cfg:      cfg,
		commands: commands,
		logger:   logger,
		routes:   map[string]route{},
		last:     map[string][]byte{},
	}, nil
}

// Run connects, keeps the session open until ctx is done, then disconnects.
func (p *Publisher) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2*time.Second).
		SetOrderMatters(false).
		SetWill(p.topic("status"), "offline", p.cfg.QoS, true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.OnConnect = func(cl mqtt.Client) {
		cl.Publish(p.topic("status"), p.cfg.QoS, true, "online")
		token := cl.Subscribe(p.topic("+/+/set/+"), p.cfg.QoS, p.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Error("mqtt subscribe failed", zap.Error(err))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	p.logger.Info("mqtt connected", zap.String("broker", p.cfg.BrokerURL), zap.String("client_id", p.cfg.ClientID))

	<-ctx.Done()
	client.Publish(p.topic("status"), p.cfg.QoS, true, "offline").WaitTimeout(time.Second)
	client.Disconnect(250)
	return nil
}

// Publish sends the state of every device whose snapshot changed. It is
// registered as a poller subscriber.
func (p *Publisher) Publish(_ context.Context, locations []lyric.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()

	routes := map[string]route{}
	for _, loc := range locations {
		locSeg := segment(loc.Name, fmt.Sprintf("location-%d", loc.LocationID))
		for _, device := range loc.Devices {
			key := locSeg + "/" + segment(device.Name(), device.DeviceID)
			if existing, taken := routes[key]; taken && existing.deviceID != device.DeviceID {
				key = locSeg + "/" + slug.Make(device.Name()+"-"+device.DeviceID)
			}
			routes[key] = route{locationID: loc.LocationID, deviceID: device.DeviceID}

			payload, err := json.Marshal(newSnapshot(loc, device))
			if err != nil {
				p.logger.Error("encode snapshot", zap.String("device_id", device.DeviceID), zap.Error(err))
				continue
			}
			topic := p.topic(key + "/state")
			if bytes.Equal(p.last[topic], payload) {
				continue
			}
			if p.client == nil {
				continue
			}
			p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
			p.last[topic] = payload
		}
	}
	p.routes = routes
}

func (p *Publisher) lookup(key string) (route, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.routes[key]
	return r, ok
}

// fanCommand with no mode re-sends the device's current fan mode.
type fanCommand struct {
	Mode string `json:"mode"`
}

func (p *Publisher) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/<location>/<device>/set/<command>
	rest, ok := strings.CutPrefix(msg.Topic(), p.cfg.BaseTopic+"/")
	if !ok {
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[2] != "set" {
		return
	}
	key, command := parts[0]+"/"+parts[1], parts[3]
	logger := p.logger.With(zap.String("topic", msg.Topic()))

	r, ok := p.lookup(key)
	if !ok {
		logger.Warn("command for unknown device")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := p.dispatch(ctx, r, command, msg.Payload()); err != nil {
		logger.Error("mqtt command failed", zap.String("command", command), zap.Error(err))
		return
	}
	logger.Info("mqtt command applied", zap.String("command", command))
}

func (p *Publisher) dispatch(ctx context.Context, r route, command string, payload []byte) error {
	switch command {
	case "fan":
		cmd, err := decodeStrict[fanCommand](payload)
		if err != nil {
			return err
		}
		location, device, err := p.resolve(ctx, r)
		if err != nil {
			return err
		}
		_, err = p.commands.UpdateFan(ctx, location, device, cmd.Mode)
		return err

	case "thermostat":
		upd, err := decodeStrict[lyric.ThermostatUpdate](payload)
		if err != nil {
			return err
		}
		location, device, err := p.resolve(ctx, r)
		if err != nil {
			return err
		}
		_, err = p.commands.UpdateThermostat(ctx, location, device, upd)
		return err

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// resolve fetches the device fresh so the merge uses current values.
func (p *Publisher) resolve(ctx context.Context, r route) (lyric.Location, lyric.Device, error) {
	devices, err := p.commands.GetDevices(ctx, r.locationID)
	if err != nil {
		return lyric.Location{}, lyric.Device{}, err
	}
	location := lyric.Location{LocationID: r.locationID, Devices: devices}
	device, ok := location.Device(r.deviceID)
	if !ok {
		return lyric.Location{}, lyric.Device{}, fmt.Errorf("device %s no longer in location %d", r.deviceID, r.locationID)
	}
	return location, device, nil
}

func (p *Publisher) topic(suffix string) string {
	return p.cfg.BaseTopic + "/" + suffix
}

func segment(name, fallback string) string {
	if s := slug.Make(name); s != "" {
		return s
	}
	return slug.Make(fallback)
}

func decodeStrict[T any](b []byte) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, fmt.Errorf("decode command: %w", err)
	}
	return out, nil
}
