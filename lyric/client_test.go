package lyric

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const locationsJSON = `[
  {
    "locationID": 1234,
    "name": "Home",
    "country": "US",
    "devices": [
      {
        "deviceID": "LCC-00D02DB6E548",
        "deviceClass": "Thermostat",
        "name": "T6",
        "userDefinedDeviceName": "Hallway",
        "isAlive": true,
        "indoorTemperature": 21.5,
        "changeableValues": {"mode": "Heat", "heatSetpoint": 20, "coolSetpoint": 25, "thermostatSetpointStatus": "NoHold"},
        "settings": {"fan": {"allowedModes": ["On", "Auto", "Circulate"], "changeableValues": {"mode": "Auto"}}}
      }
    ]
  }
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.Client(), "key-1", WithBaseURL(server.URL), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, "key")
	assert.Error(t, err)

	_, err = NewClient(http.DefaultClient, " ")
	assert.Error(t, err)

	client, err := NewClient(http.DefaultClient, "key")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, "key", client.ClientID())
}

func TestGetLocations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/locations", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, locationsJSON)
	})

	locations, err := client.GetLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)

	loc := locations[0]
	assert.Equal(t, 1234, loc.LocationID)
	assert.Equal(t, "Home", loc.Name)
	require.Len(t, loc.Devices, 1)
	assert.NotEmpty(t, loc.Raw)

	device, ok := loc.Device("LCC-00D02DB6E548")
	require.True(t, ok)
	assert.Equal(t, "Hallway", device.Name())
	assert.Equal(t, "Heat", device.Mode())
	assert.Equal(t, "Auto", device.FanMode())
	assert.Equal(t, []string{"On", "Auto", "Circulate"}, device.FanModes())
	require.NotNil(t, device.IndoorTemperature)
	assert.Equal(t, 21.5, *device.IndoorTemperature)
	assert.Contains(t, string(device.Raw), `"userDefinedDeviceName": "Hallway"`)

	assert.Equal(t, locations, client.Locations())
}

func TestGetLocationsEmptyPayloads(t *testing.T) {
	for name, body := range map[string]string{
		"empty body":   "",
		"null":         "null",
		"empty array":  "[]",
		"whitespace":   "  \n",
		"empty object": "{}",
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			})

			locations, err := client.GetLocations(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, locations)
			assert.Empty(t, locations)
			assert.NotNil(t, client.Locations())
			assert.Empty(t, client.Locations())
		})
	}
}

func TestGetDevicesEmptyObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, " {} ")
	})

	devices, err := client.GetDevices(context.Background(), 1234)
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
	assert.NotNil(t, client.Devices())
}

func TestGetDevicesReplacesList(t *testing.T) {
	responses := []string{
		`[{"deviceID":"a"},{"deviceID":"b"}]`,
		`[{"deviceID":"c"}]`,
		`null`,
	}
	var call int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("apikey"))
		assert.Equal(t, "1234", r.URL.Query().Get("locationId"))
		_, _ = io.WriteString(w, responses[call])
		call++
	})
	ctx := context.Background()

	devices, err := client.GetDevices(ctx, 1234)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	_, err = client.GetDevices(ctx, 1234)
	require.NoError(t, err)
	stored := client.Devices()
	require.Len(t, stored, 1)
	assert.Equal(t, "c", stored[0].DeviceID)

	devices, err = client.GetDevices(ctx, 1234)
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
	assert.NotNil(t, client.Devices())
	assert.Empty(t, client.Devices())
}

func TestLocationWithoutDevices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"locationID": 7, "name": "Cabin"}]`)
	})

	locations, err := client.GetLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.NotNil(t, locations[0].Devices)
	assert.Empty(t, locations[0].Devices)
}

func TestStatusErrors(t *testing.T) {
	tests := map[string]struct {
		status   int
		wantAuth bool
	}{
		"unauthorized": {status: http.StatusUnauthorized, wantAuth: true},
		"forbidden":    {status: http.StatusForbidden, wantAuth: true},
		"server error": {status: http.StatusInternalServerError},
		"not found":    {status: http.StatusNotFound},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"code":1,"message":"nope"}`)
			})

			_, err := client.GetLocations(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLyric)
			assert.Equal(t, tt.wantAuth, errors.Is(err, ErrAuthentication))

			var statusErr HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Status)
			assert.Contains(t, statusErr.Error(), "nope")
		})
	}
}

func TestFailedFetchKeepsPreviousList(t *testing.T) {
	fail := false
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, locationsJSON)
	})
	ctx := context.Background()

	_, err := client.GetLocations(ctx)
	require.NoError(t, err)

	fail = true
	_, err = client.GetLocations(ctx)
	require.Error(t, err)
	assert.Len(t, client.Locations(), 1)
}

func TestDecodeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"}`)
	})

	_, err := client.GetLocations(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLyric)
	assert.Contains(t, err.Error(), "decode /locations")
}

func TestTransportErrorPropagates(t *testing.T) {
	sentinel := errors.New("dial refused")
	httpClient := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, sentinel
	})}
	client, err := NewClient(httpClient, "key")
	require.NoError(t, err)

	_, err = client.GetDevices(context.Background(), 1)
	assert.ErrorIs(t, err, sentinel)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
