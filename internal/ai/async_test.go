package ai

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink records Put calls in memory.
type memorySink struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memorySink) Put(_ context.Context, procedure, ext, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	name := strings.ToLower(procedure) + ext
	m.items[name] = data
	return "/files/" + name, nil
}

// mp4Header is enough of an ftyp box for content sniffing.
var mp4Header = append([]byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}, bytes.Repeat([]byte{0}, 64)...)

var pngHeader = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 32)...)

func TestFluxSubmitPollDownload(t *testing.T) {
	var srv *httptest.Server
	polls := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/flux-test":
			assert.Equal(t, "key", r.Header.Get("x-key"))
			_, _ = w.Write([]byte(`{"id":"job-1"}`))
		case r.URL.Path == "/get_result":
			assert.Equal(t, "job-1", r.URL.Query().Get("id"))
			polls++
			if polls == 1 {
				_, _ = w.Write([]byte(`{"id":"job-1","status":"Pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"job-1","status":"Ready","result":{"sample":"` + srv.URL + `/sample.png"}}`))
		case r.URL.Path == "/sample.png":
			_, _ = w.Write(pngHeader)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	flux := NewFlux(FluxConfig{APIKey: "key", BaseURL: srv.URL, Model: "flux-test"})
	result := flux.Attempt(context.Background(), NewRequest(CapabilityImage, DomainKeyframe, WithPrompt("catheter lab"), WithSize("512x512")))
	require.True(t, result.IsPending(), "expected pending got %+v", result)

	first := flux.Poll(context.Background(), *result.Pending)
	assert.False(t, first.Done)

	second := flux.Poll(context.Background(), *result.Pending)
	require.True(t, second.Done)
	require.NoError(t, second.Err)
	assert.Equal(t, "image/png", second.Artifact.MIMEType)
	assert.Equal(t, pngHeader, second.Artifact.Data)
}

func TestFluxModeratedIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"job-1","status":"Content Moderated"}`))
	}))
	defer srv.Close()
	flux := NewFlux(FluxConfig{APIKey: "key", BaseURL: srv.URL})
	res := flux.Poll(context.Background(), PendingOperation{ID: "job-1"})
	require.True(t, res.Done)
	assert.True(t, errors.Is(res.Err, ErrJobFailed))
}

func TestVeoLongRunningOperation(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/veo-test:predictLongRunning":
			assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"durationSeconds":8`)
			assert.Contains(t, string(body), `"bytesBase64Encoded"`)
			_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op-7"}`))
		case r.URL.Path == "/models/veo-test/operations/op-7":
			_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op-7","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"` + srv.URL + `/files/v.mp4"}}]}}}`))
		case r.URL.Path == "/files/v.mp4":
			_, _ = w.Write(mp4Header)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sink := &memorySink{}
	veo := NewVeo(VeoConfig{APIKey: "gk", BaseURL: srv.URL, Model: "veo-test", Sink: sink})
	req := NewRequest(CapabilityVideo, DomainVideo,
		WithPrompt("PCI walkthrough"),
		WithProcedure("PCI_BALLOON"),
		WithDuration(60_000_000_000),
		WithReference(Reference{MIMEType: "image/png", Data: pngHeader}),
	)
	result := veo.Attempt(context.Background(), req)
	require.True(t, result.IsPending(), "expected pending got %+v", result)
	assert.Equal(t, "PCI_BALLOON", result.Pending.Procedure)

	done := veo.Poll(context.Background(), *result.Pending)
	require.True(t, done.Done)
	require.NoError(t, done.Err)
	assert.Equal(t, "video/mp4", done.Artifact.MIMEType)
	assert.Equal(t, "/files/pci_balloon.mp4", done.Artifact.Location)
	assert.Len(t, sink.items, 1)
}

func TestVeoOperationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"op","done":true,"error":{"code":3,"message":"bad prompt"}}`))
	}))
	defer srv.Close()
	veo := NewVeo(VeoConfig{APIKey: "gk", BaseURL: srv.URL, Sink: &memorySink{}})
	res := veo.Poll(context.Background(), PendingOperation{Handle: "/op"})
	require.True(t, res.Done)
	assert.True(t, errors.Is(res.Err, ErrJobFailed))
}

func TestVeoNeedsSink(t *testing.T) {
	assert.False(t, NewVeo(VeoConfig{APIKey: "gk"}).Configured())
}

func TestReplicatePrediction(t *testing.T) {
	var srv *httptest.Server
	state := "starting"
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting","urls":{"get":"` + srv.URL + `/predictions/p1"}}`))
		case r.URL.Path == "/predictions/p1":
			if state == "starting" {
				state = "done"
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["` + srv.URL + `/out.mp4"]}`))
		case r.URL.Path == "/out.mp4":
			_, _ = w.Write(mp4Header)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sink := &memorySink{}
	rep := NewReplicate(ReplicateConfig{APIToken: "tok", BaseURL: srv.URL, ModelVersion: "v1", Sink: sink})
	result := rep.Attempt(context.Background(), NewRequest(CapabilityVideo, DomainVideo, WithPrompt("CPR"), WithProcedure("CPR")))
	require.True(t, result.IsPending())

	assert.False(t, rep.Poll(context.Background(), *result.Pending).Done)
	done := rep.Poll(context.Background(), *result.Pending)
	require.True(t, done.Done)
	require.NoError(t, done.Err)
	assert.Equal(t, "/files/cpr.mp4", done.Artifact.Location)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"512x256", 512, 256},
		{" 800 X 600 ", 800, 600},
		{"", 1024, 768},
		{"bad", 1024, 768},
		{"0x10", 1024, 768},
	}
	for _, tc := range tests {
		w, h := parseSize(tc.in, 1024, 768)
		if w != tc.w || h != tc.h {
			t.Fatalf("parseSize(%q) expected %dx%d got %dx%d", tc.in, tc.w, tc.h, w, h)
		}
	}
}
