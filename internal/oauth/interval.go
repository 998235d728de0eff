package oauth

import (
	"time"

	"github.com/joshp123/gohome-lyric/internal/config"
)

const DefaultRefreshInterval = config.DefaultRefreshInterval

// RefreshInterval returns 0 when background refresh is disabled.
func RefreshInterval(cfg config.OAuthConfig) time.Duration {
	if cfg.RefreshEnabled != nil && !*cfg.RefreshEnabled {
		return 0
	}
	if cfg.RefreshInterval > 0 {
		return cfg.RefreshInterval
	}
	return DefaultRefreshInterval
}
