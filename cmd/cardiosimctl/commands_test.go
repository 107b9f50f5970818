package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/store"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	jsonOutput, verbose = false, false
	var out bytes.Buffer
	cmd := newRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestClassifyCommand(t *testing.T) {
	cases := []struct {
		args   []string
		bucket string
	}{
		{[]string{"classify", "--ecg", "ST elevation in V1-V4", "--troponin", "3.2"}, "stemi"},
		{[]string{"classify", "--ecg", "ST depression", "--troponin", "2"}, "nstemi"},
		{[]string{"classify", "--ecg", "normal sinus rhythm"}, "angina"},
	}
	for _, tc := range cases {
		t.Run(tc.bucket, func(t *testing.T) {
			out := run(t, append(tc.args, "--json")...)
			var body struct {
				Bucket string `json:"bucket"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &body), out)
			assert.Equal(t, tc.bucket, body.Bucket)
		})
	}
}

func TestTemplatesCommand(t *testing.T) {
	out := run(t, "templates")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "STEMI"))
	assert.True(t, strings.HasPrefix(lines[2], "CPR"))
}

func TestResolveCommandWithoutCredentials(t *testing.T) {
	t.Setenv("GEMINI_MOCK", "true")
	t.Setenv("ARTIFACT_DIR", t.TempDir())
	out := run(t, "resolve", "--domain", "explain", "--fallback-key", "patient", "--prompt", "Explain STEMI", "--json")
	var body struct {
		Provenance string `json:"provenance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body), out)
	assert.Equal(t, "fallback", body.Provenance)
}

func TestArtifactsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := store.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, db.SaveArtifact(&store.StoredArtifact{Procedure: "CPR", Provider: "veo", Location: "/files/cpr-01.mp4", MIMEType: "video/mp4"}))
	require.NoError(t, db.SaveArtifact(&store.StoredArtifact{Procedure: "STEMI", Provider: "replicate", Location: "/files/stemi-01.mp4", MIMEType: "video/mp4"}))
	require.NoError(t, db.Close())

	out := run(t, "artifacts", "--db", path, "--procedure", "CPR", "--json")
	var rows []store.StoredArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	require.Len(t, rows, 1)
	assert.Equal(t, "/files/cpr-01.mp4", rows[0].Location)
}

func TestAuditDisabled(t *testing.T) {
	t.Setenv("AUDIT_DB_PATH", "off")
	cmd := newRootCommand("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"resolutions"})
	assert.EqualError(t, cmd.Execute(), "audit database disabled")
}
