package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-lyric/internal/oauthflow"
)

func TestPrintPersistResult(t *testing.T) {
	result := oauthflow.PersistResult{StatePath: "/var/lib/gohome/lyric-credentials.json", BlobSaved: true}

	var text bytes.Buffer
	require.NoError(t, printPersistResult(&text, result, false))
	assert.Contains(t, text.String(), "State file: /var/lib/gohome/lyric-credentials.json")
	assert.Contains(t, text.String(), "Blob persisted: true")

	var out bytes.Buffer
	require.NoError(t, printPersistResult(&out, result, true))
	var decoded oauthflow.PersistResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, result, decoded)
}
