package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gohome-lyric/lyric"
)

// Source supplies the device snapshot to export.
type Source interface {
	Locations() []lyric.Location
}

// Collector exports thermostat state from the last poll. It never calls the
// API itself; the poller reports its outcome through ObservePoll.
type Collector struct {
	source Source

	alive          *prometheus.GaugeVec
	indoorTemp     *prometheus.GaugeVec
	outdoorTemp    *prometheus.GaugeVec
	indoorHumidity *prometheus.GaugeVec
	setpoint       *prometheus.GaugeVec
	mode           *prometheus.GaugeVec
	fanMode        *prometheus.GaugeVec
	setpointStatus *prometheus.GaugeVec
	devices        *prometheus.GaugeVec
	pollSuccess    prometheus.Gauge
	lastPoll       prometheus.Gauge
	pollFailures   prometheus.Counter

	mu sync.Mutex
}

func NewCollector(source Source) *Collector {
	labels := []string{"location_id", "device_id", "device_name"}
	withLabel := func(extra string) []string {
		return append(append([]string(nil), labels...), extra)
	}
	return &Collector{
		source: source,
		alive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_device_alive",
			Help: "Whether the device reports as alive (1=alive, 0=offline)",
		}, labels),
		indoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_indoor_temperature",
			Help: "Indoor temperature in the device's units",
		}, labels),
		outdoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_outdoor_temperature",
			Help: "Outdoor temperature in the device's units",
		}, labels),
		indoorHumidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_indoor_humidity_percent",
			Help: "Indoor relative humidity (%)",
		}, labels),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_setpoint",
			Help: "Heat and cool setpoints in the device's units",
		}, withLabel("kind")),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_mode",
			Help: "System mode reported by the device (1=active)",
		}, withLabel("mode")),
		fanMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_fan_mode",
			Help: "Fan mode reported by the device (1=active)",
		}, withLabel("mode")),
		setpointStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_setpoint_status",
			Help: "Thermostat setpoint status (1=active)",
		}, withLabel("status")),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyric_location_devices",
			Help: "Number of devices per location",
		}, []string{"location_id", "location_name"}),
		pollSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lyric_poll_success",
			Help: "Last poll success (1=ok, 0=error)",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lyric_last_poll_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lyric_poll_failures_total",
			Help: "Polls that returned an error",
		}),
	}
}

// ObservePoll records the outcome of one poll.
func (c *Collector) ObservePoll(err error) {
	if err != nil {
		c.pollSuccess.Set(0)
		c.pollFailures.Inc()
		return
	}
	c.pollSuccess.Set(1)
	c.lastPoll.Set(float64(time.Now().Unix()))
}

func (c *Collector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.alive,
		c.indoorTemp,
		c.outdoorTemp,
		c.indoorHumidity,
		c.setpoint,
		c.mode,
		c.fanMode,
		c.setpointStatus,
		c.devices,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, vec := range c.vecs() {
		vec.Describe(ch)
	}
	c.pollSuccess.Describe(ch)
	c.lastPoll.Describe(ch)
	c.pollFailures.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, vec := range c.vecs() {
		vec.Reset()
	}

	for _, loc := range c.source.Locations() {
		locationID := strconv.Itoa(loc.LocationID)
		c.devices.WithLabelValues(locationID, loc.Name).Set(float64(len(loc.Devices)))

		for _, device := range loc.Devices {
			labels := []string{locationID, device.DeviceID, device.Name()}
			c.alive.WithLabelValues(labels...).Set(boolFloat(device.IsAlive))
			setIf(c.indoorTemp, device.IndoorTemperature, labels...)
			setIf(c.outdoorTemp, device.OutdoorTemperature, labels...)
			setIf(c.indoorHumidity, device.IndoorHumidity, labels...)

			values := device.ChangeableValues
			setIf(c.setpoint, values.HeatSetpoint, append(labels, "heat")...)
			setIf(c.setpoint, values.CoolSetpoint, append(labels, "cool")...)
			if mode := device.Mode(); mode != "" {
				c.mode.WithLabelValues(append(labels, mode)...).Set(1)
			}
			if fan := device.FanMode(); fan != "" {
				c.fanMode.WithLabelValues(append(labels, fan)...).Set(1)
			}
			if status := values.ThermostatSetpointStatus; status != "" {
				c.setpointStatus.WithLabelValues(append(labels, status)...).Set(1)
			}
		}
	}

	for _, vec := range c.vecs() {
		vec.Collect(ch)
	}
	c.pollSuccess.Collect(ch)
	c.lastPoll.Collect(ch)
	c.pollFailures.Collect(ch)
}

// setIf leaves the series absent when the device did not report value.
func setIf(vec *prometheus.GaugeVec, value *float64, labels ...string) {
	if value != nil {
		vec.WithLabelValues(labels...).Set(*value)
	}
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
