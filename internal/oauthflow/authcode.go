package oauthflow

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/joshp123/gohome-lyric/internal/oauth"
)

// AuthCode runs the authorization-code grant that issues the first refresh
// token for a provider.
type AuthCode struct {
	decl      oauth.Declaration
	bootstrap oauth.Bootstrap
	conf      *oauth2.Config
	state     string
	redirect  *url.URL
}

func NewAuthCode(decl oauth.Declaration, bootstrap oauth.Bootstrap, redirectURL string) (*AuthCode, error) {
	if decl.AuthorizeURL == "" || decl.TokenURL == "" {
		return nil, fmt.Errorf("provider %q missing oauth endpoints", decl.Provider)
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, err
	}
	redirect, err := url.Parse(redirectURL)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q", redirectURL)
	}
	state, err := randomState(16)
	if err != nil {
		return nil, err
	}

	return &AuthCode{
		decl:      decl,
		bootstrap: bootstrap,
		state:     state,
		redirect:  redirect,
		conf: &oauth2.Config{
			ClientID:     bootstrap.ClientID,
			ClientSecret: bootstrap.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   decl.AuthorizeURL,
				TokenURL:  decl.TokenURL,
				AuthStyle: decl.AuthStyle,
			},
			RedirectURL: redirectURL,
			Scopes:      strings.Fields(decl.Scope),
		},
	}, nil
}

// URL is the page the user opens to grant access.
func (a *AuthCode) URL() string {
	return a.conf.AuthCodeURL(a.state, oauth2.AccessTypeOffline)
}

// WaitForCode listens on a loopback redirect for the callback. For any other
// redirect, or when the port is taken, it reads the code (or the whole
// redirect URL) from paste instead.
func (a *AuthCode) WaitForCode(ctx context.Context, paste io.Reader) (string, error) {
	if a.redirect.Scheme == "http" && isLoopback(a.redirect.Hostname()) {
		ln, err := net.Listen("tcp", a.redirect.Host)
		if err == nil {
			return a.serveCallback(ctx, ln)
		}
	}
	return readCode(paste)
}

func (a *AuthCode) serveCallback(ctx context.Context, ln net.Listener) (string, error) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{Handler: callbackHandler(a.redirect.Path, a.state, codes, errs)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	defer func() {
		_ = srv.Close()
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("authorization timed out")
	case err := <-errs:
		return "", err
	case code := <-codes:
		return code, nil
	}
}

// Exchange trades the code for tokens and returns the state to persist.
func (a *AuthCode) Exchange(ctx context.Context, code string) (oauth.State, error) {
	token, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return oauth.State{}, fmt.Errorf("exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return oauth.State{}, fmt.Errorf("no refresh_token returned; check the redirect URL and app permissions")
	}
	return oauth.State{
		SchemaVersion: oauth.SchemaVersion,
		ClientID:      a.bootstrap.ClientID,
		ClientSecret:  a.bootstrap.ClientSecret,
		RefreshToken:  token.RefreshToken,
		AccessToken:   token.AccessToken,
		Expiry:        token.Expiry,
		Scope:         a.decl.Scope,
	}, nil
}

func callbackHandler(path, state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != "" && path != "/" && r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		switch {
		case query.Get("error") != "":
			send(errs, fmt.Errorf("authorization error: %s", query.Get("error")))
			_, _ = io.WriteString(w, "Authorization failed. You can close this window.")
		case query.Get("state") != state:
			send(errs, fmt.Errorf("state mismatch"))
			_, _ = io.WriteString(w, "State mismatch. You can close this window.")
		case query.Get("code") == "":
			send(errs, fmt.Errorf("missing code in callback"))
			_, _ = io.WriteString(w, "Missing authorization code. You can close this window.")
		default:
			send(codes, query.Get("code"))
			_, _ = io.WriteString(w, "Authorization received. You can close this window.")
		}
	})
}

func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// readCode accepts either the bare code or the full redirect URL.
func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no code provided")
	}
	if parsed, err := url.Parse(line); err == nil && parsed.Query().Get("code") != "" {
		return parsed.Query().Get("code"), nil
	}
	return line, nil
}

func randomState(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
