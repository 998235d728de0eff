package lyric

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrLyric matches every error reported by the Lyric API.
	ErrLyric = errors.New("lyric api error")
	// ErrAuthentication matches responses rejected for missing or invalid credentials.
	ErrAuthentication = errors.New("lyric authentication failed")
)

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("lyric api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (e HTTPStatusError) Is(target error) bool {
	switch target {
	case ErrLyric:
		return true
	case ErrAuthentication:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	default:
		return false
	}
}
