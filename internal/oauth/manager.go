package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrScopeMismatch    = errors.New("oauth scope mismatch")
	ErrTokenUnavailable = errors.New("oauth token unavailable")
)

const (
	expiryLeeway   = 30 * time.Second
	refreshTimeout = 30 * time.Second
)

// Manager owns the refresh token for one provider, caches the access token
// and persists every rotation to the state file and the blob store. It
// implements oauth2.TokenSource.
type Manager struct {
	decl       Declaration
	blobStore  BlobStore
	httpClient *http.Client
	logger     *zap.Logger
	config     *oauth2.Config

	clientID     string
	clientSecret string
	scope        string

	// refreshMu serializes refreshes; a rotated refresh token is single use.
	refreshMu       sync.Mutex
	refreshInFlight atomic.Bool

	mu    sync.Mutex
	token *oauth2.Token
}

type ManagerOption func(*Manager)

// WithLogger sets the logger for refresh failures.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

func NewManager(decl Declaration, bootstrapPath string, blobStore BlobStore, opts ...ManagerOption) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(decl, bootstrap, blobStore, opts...)
}

// NewManagerFromBootstrap creates a manager from inline credentials.
func NewManagerFromBootstrap(decl Declaration, bootstrap Bootstrap, blobStore BlobStore, opts ...ManagerOption) (*Manager, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if decl.StatePath == "" {
		return nil, fmt.Errorf("statePath is required")
	}
	if !filepath.IsAbs(decl.StatePath) {
		return nil, fmt.Errorf("statePath must be absolute")
	}
	if blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	m := &Manager{
		decl:         decl,
		blobStore:    blobStore,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       zap.NewNop(),
		clientID:     bootstrap.ClientID,
		clientSecret: bootstrap.ClientSecret,
		config: &oauth2.Config{
			ClientID:     bootstrap.ClientID,
			ClientSecret: bootstrap.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   decl.AuthorizeURL,
				TokenURL:  decl.TokenURL,
				AuthStyle: decl.AuthStyle,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("provider", decl.Provider))

	state, err := m.loadInitialState(context.Background(), bootstrap)
	if err != nil {
		return nil, err
	}
	m.scope = state.Scope
	m.token = state.token()
	if m.token.Valid() {
		tokenValid.WithLabelValues(decl.Provider).Set(1)
		tokenExpiry.WithLabelValues(decl.Provider).Set(float64(m.token.Expiry.Unix()))
	}

	return m, nil
}

// Token returns a valid access token, refreshing synchronously if the cached
// one is missing or about to expire.
func (m *Manager) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	token, err := m.ensure(ctx, expiryLeeway, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return token, nil
}

// HTTPClient returns a client that authorizes every request with the
// manager's bearer token.
func (m *Manager) HTTPClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: m, Base: base},
	}
}

// Start refreshes the token ahead of expiry every DefaultRefreshInterval.
func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

// StartWithInterval refreshes once, then keeps the token at least one
// interval away from expiry until ctx is done. A zero interval disables it.
func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := max(interval, expiryLeeway)
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

// TriggerRefresh forces a background refresh, typically after the API
// rejected the current token. Calls made while one is running are dropped.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	if !m.refreshInFlight.CompareAndSwap(false, true) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer m.refreshInFlight.Store(false)
		ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if _, err := m.ensure(ctx, 0, true); err != nil {
			m.logger.Warn("forced token refresh failed", zap.Error(err))
		}
	}()
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	if _, err := m.ensure(ctx, threshold, false); err != nil {
		m.logger.Warn("token refresh failed", zap.Error(err))
	}
}

func (m *Manager) current() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := *m.token
	return &token
}

func fresh(token *oauth2.Token, threshold time.Duration) bool {
	if token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return time.Until(token.Expiry) > threshold
}

func (m *Manager) ensure(ctx context.Context, threshold time.Duration, force bool) (*oauth2.Token, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if token := m.current(); !force && fresh(token, threshold) {
		return token, nil
	}
	return m.refresh(ctx)
}

// refresh must be called with refreshMu held.
func (m *Manager) refresh(ctx context.Context) (*oauth2.Token, error) {
	previous := m.current()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: previous.RefreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return nil, fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = previous.RefreshToken
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	if !token.Expiry.IsZero() {
		tokenExpiry.WithLabelValues(m.decl.Provider).Set(float64(token.Expiry.Unix()))
	}

	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.clientID,
		ClientSecret:  m.clientSecret,
		RefreshToken:  token.RefreshToken,
		AccessToken:   token.AccessToken,
		Expiry:        token.Expiry,
		Scope:         m.scope,
	}
	if err := WriteState(m.decl.StatePath, state); err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		return nil, fmt.Errorf("persist state: %w", err)
	}
	m.mirror(ctx, state)

	refreshSuccess.WithLabelValues(m.decl.Provider).Inc()
	m.logger.Debug("token refreshed", zap.Time("expiry", token.Expiry))
	out := *token
	return &out, nil
}

// loadInitialState prefers the local state file, then the blob mirror, then
// the bootstrap refresh token.
func (m *Manager) loadInitialState(ctx context.Context, bootstrap Bootstrap) (State, error) {
	local, localErr := LoadState(m.decl.StatePath)
	if localErr == nil {
		if err := checkStateFile(m.decl.StatePath); err != nil {
			return State{}, err
		}
		state, err := m.adopt(local, bootstrap)
		if err != nil {
			return State{}, err
		}
		m.mirror(ctx, state)
		return state, nil
	}

	blob, blobErr := m.loadFromBlob(ctx)
	if blobErr == nil {
		state, err := m.adopt(blob, bootstrap)
		if err != nil {
			return State{}, err
		}
		if err := WriteState(m.decl.StatePath, state); err != nil {
			return State{}, err
		}
		m.logger.Info("restored oauth state from blob store")
		return state, nil
	}

	if !errors.Is(blobErr, ErrBlobNotFound) {
		if !errors.Is(localErr, ErrStateNotFound) {
			return State{}, localErr
		}
		return State{}, blobErr
	}

	if bootstrap.RefreshToken == "" {
		return State{}, fmt.Errorf("bootstrap missing refresh_token; complete the authorization code flow first")
	}

	state, err := m.adopt(State{
		SchemaVersion: SchemaVersion,
		RefreshToken:  bootstrap.RefreshToken,
		Scope:         bootstrap.Scope,
	}, bootstrap)
	if err != nil {
		return State{}, err
	}
	if err := WriteState(m.decl.StatePath, state); err != nil {
		return State{}, err
	}
	m.mirror(ctx, state)
	return state, nil
}

// adopt pins the bootstrap credentials onto state and checks its scope.
func (m *Manager) adopt(state State, bootstrap Bootstrap) (State, error) {
	state.ClientID = bootstrap.ClientID
	state.ClientSecret = bootstrap.ClientSecret
	if state.Scope == "" {
		state.Scope = m.decl.Scope
	}
	if m.decl.Scope != "" && state.Scope != m.decl.Scope {
		scopeMismatch.WithLabelValues(m.decl.Provider).Inc()
		return State{}, ErrScopeMismatch
	}
	return state, nil
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx, m.decl.Provider)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

// mirror copies state to the blob store. Failures only degrade the gauge.
func (m *Manager) mirror(ctx context.Context, state State) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err == nil {
		err = m.blobStore.Save(ctx, m.decl.Provider, data)
	}
	if err != nil {
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
		m.logger.Warn("mirror oauth state", zap.Error(err))
		return
	}
	remotePersistOK.WithLabelValues(m.decl.Provider).Set(1)
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
