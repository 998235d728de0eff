package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joshp123/gohome-lyric/lyric"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) GetLocations(ctx context.Context) ([]lyric.Location, error) {
	args := m.Called(ctx)
	locations, _ := args.Get(0).([]lyric.Location)
	return locations, args.Error(1)
}

func (m *mockFetcher) GetDevices(ctx context.Context, locationID int) ([]lyric.Device, error) {
	args := m.Called(ctx, locationID)
	devices, _ := args.Get(0).([]lyric.Device)
	return devices, args.Error(1)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, time.Minute)
	assert.Error(t, err)

	_, err = New(&mockFetcher{}, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestPoll(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("GetLocations", mock.Anything).Return([]lyric.Location{
		{LocationID: 1, Name: "Home", Devices: []lyric.Device{{DeviceID: "stale"}}},
		{LocationID: 2, Name: "Cabin", Devices: []lyric.Device{{DeviceID: "embedded"}}},
	}, nil)
	fetcher.On("GetDevices", mock.Anything, 1).Return([]lyric.Device{{DeviceID: "fresh-a"}, {DeviceID: "fresh-b"}}, nil)
	fetcher.On("GetDevices", mock.Anything, 2).Return(nil, errors.New("boom"))

	var observed []error
	var notified []lyric.Location
	p, err := New(fetcher, time.Minute,
		WithLogger(zaptest.NewLogger(t)),
		WithObserver(func(err error) { observed = append(observed, err) }),
		WithSubscriber(func(_ context.Context, locations []lyric.Location) { notified = locations }),
	)
	require.NoError(t, err)

	err = p.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location 2")

	locations := p.Locations()
	require.Len(t, locations, 2)
	assert.Equal(t, []lyric.Device{{DeviceID: "fresh-a"}, {DeviceID: "fresh-b"}}, locations[0].Devices)
	assert.Equal(t, "embedded", locations[1].Devices[0].DeviceID)

	assert.Equal(t, err, p.LastError())
	require.Len(t, observed, 1)
	assert.Equal(t, err, observed[0])
	assert.Equal(t, locations, notified)
	assert.False(t, p.PolledAt().IsZero())
	fetcher.AssertExpectations(t)
}

func TestPollLocationsFailureKeepsSnapshot(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("GetLocations", mock.Anything).Return([]lyric.Location{{LocationID: 1}}, nil).Once()
	fetcher.On("GetDevices", mock.Anything, 1).Return([]lyric.Device{{DeviceID: "a"}}, nil).Once()
	fetcher.On("GetLocations", mock.Anything).Return(nil, lyric.HTTPStatusError{Status: 401}).Once()

	var refreshes int
	p, err := New(fetcher, time.Minute, WithAuthFailureHandler(func(context.Context) { refreshes++ }))
	require.NoError(t, err)

	require.NoError(t, p.Poll(context.Background()))
	err = p.Poll(context.Background())
	assert.ErrorIs(t, err, lyric.ErrAuthentication)
	assert.Equal(t, 1, refreshes)

	locations := p.Locations()
	require.Len(t, locations, 1)
	assert.Equal(t, "a", locations[0].Devices[0].DeviceID)
}

func TestLocationsReturnsCopy(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("GetLocations", mock.Anything).Return([]lyric.Location{{LocationID: 1}}, nil)
	fetcher.On("GetDevices", mock.Anything, 1).Return([]lyric.Device{{DeviceID: "a"}}, nil)

	p, err := New(fetcher, time.Minute)
	require.NoError(t, err)
	require.NoError(t, p.Poll(context.Background()))

	snapshot := p.Locations()
	snapshot[0].Devices[0].DeviceID = "mutated"
	assert.Equal(t, "a", p.Locations()[0].Devices[0].DeviceID)
}

func TestRunPollsImmediatelyAndStops(t *testing.T) {
	fetcher := &mockFetcher{}
	var polls atomic.Int32
	fetcher.On("GetLocations", mock.Anything).Run(func(mock.Arguments) { polls.Add(1) }).Return([]lyric.Location{}, nil)

	p, err := New(fetcher, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return polls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestJobSkipsWhilePollRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	fetcher := &mockFetcher{}
	fetcher.On("GetLocations", mock.Anything).Run(func(mock.Arguments) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	}).Return([]lyric.Location{}, nil)

	p, err := New(fetcher, time.Minute, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	job := p.job(context.Background())

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done
	job.Run()
	assert.Equal(t, int32(2), calls.Load())
}
