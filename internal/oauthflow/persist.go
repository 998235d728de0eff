package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joshp123/gohome-lyric/internal/oauth"
)

// PersistResult reports where the state ended up.
type PersistResult struct {
	StatePath string `json:"state_path"`
	BlobSaved bool   `json:"blob_saved"`
}

// DefaultTempPath is a timestamped scratch path for a freshly issued state.
func DefaultTempPath(provider string) string {
	name := fmt.Sprintf("lyric-oauth-%s-%s.json", provider, time.Now().UTC().Format("20060102-150405"))
	return filepath.Join(os.TempDir(), name)
}

// PersistState writes state to the declaration's state path, or override when
// set, and mirrors it to blob when one is given.
func PersistState(ctx context.Context, decl oauth.Declaration, state oauth.State, blob oauth.BlobStore, override string) (PersistResult, error) {
	path := decl.StatePath
	if override != "" {
		path = override
	}
	if path == "" {
		return PersistResult{}, fmt.Errorf("state path missing")
	}
	if err := state.Validate(); err != nil {
		return PersistResult{}, err
	}
	if err := oauth.WriteState(path, state); err != nil {
		return PersistResult{}, err
	}

	result := PersistResult{StatePath: path}
	if blob == nil {
		return result, nil
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return result, err
	}
	if err := blob.Save(ctx, decl.Provider, payload); err != nil {
		return result, fmt.Errorf("mirror state: %w", err)
	}
	result.BlobSaved = true
	return result, nil
}
