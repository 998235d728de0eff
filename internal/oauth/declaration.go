package oauth

import "golang.org/x/oauth2"

const (
	HoneywellAuthorizeURL = "https://api.honeywell.com/oauth2/authorize"
	HoneywellTokenURL     = "https://api.honeywell.com/oauth2/token"
)

// Declaration describes the OAuth endpoints and local state of one provider.
type Declaration struct {
	Provider     string
	AuthorizeURL string
	TokenURL     string
	Scope        string
	StatePath    string
	// AuthStyle defaults to oauth2.AuthStyleAutoDetect.
	AuthStyle oauth2.AuthStyle
}

// Honeywell returns the declaration for the Lyric API. The token endpoint
// expects client credentials as HTTP basic auth.
func Honeywell(statePath string) Declaration {
	return Declaration{
		Provider:     "honeywell",
		AuthorizeURL: HoneywellAuthorizeURL,
		TokenURL:     HoneywellTokenURL,
		StatePath:    statePath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}
