package ai

import (
	"testing"
	"time"
)

func TestRequestIsImmutable(t *testing.T) {
	fields := map[string]string{"diagnosis": "STEMI"}
	image := []byte{1, 2, 3}
	req := NewRequest(CapabilityVideo, DomainVideo,
		WithFields(fields),
		WithReference(Reference{MIMEType: "image/png", Data: image}),
		WithDuration(8*time.Second),
	)

	fields["diagnosis"] = "changed"
	image[0] = 9
	got := req.Fields()
	got["diagnosis"] = "mutated"
	refs := req.References()
	refs[0].Data[1] = 9

	if req.Field("diagnosis") != "STEMI" {
		t.Fatalf("field leaked mutation: %s", req.Field("diagnosis"))
	}
	if data := req.References()[0].Data; data[0] != 1 || data[1] != 2 {
		t.Fatalf("reference leaked mutation: %v", data)
	}
	if req.Duration() != 8*time.Second {
		t.Fatalf("unexpected duration %s", req.Duration())
	}
}

func TestUserContentRendersFieldsSorted(t *testing.T) {
	req := NewRequest(CapabilityText, DomainExplain, WithField("b", "2"), WithField("a", "1"))
	if got := req.UserContent(); got != "a: 1\nb: 2" {
		t.Fatalf("unexpected content %q", got)
	}
	req = NewRequest(CapabilityText, DomainExplain, WithPrompt("explicit"), WithField("a", "1"))
	if got := req.UserContent(); got != "explicit" {
		t.Fatalf("expected prompt to win got %q", got)
	}
}

func TestDefaultDecoderRejectsBlank(t *testing.T) {
	req := NewRequest(CapabilityText, DomainExplain)
	if _, err := req.Decode("   "); err == nil {
		t.Fatalf("expected blank completion to fail")
	}
	artifact, err := req.Decode(" hello ")
	if err != nil || artifact.Text != "hello" {
		t.Fatalf("unexpected decode %+v %v", artifact, err)
	}
}
