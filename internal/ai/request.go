package ai

import (
	"sort"
	"strings"
	"time"
)

// Reference is an input artifact attached to a request, such as a prior
// generated image used to condition a video.
type Reference struct {
	MIMEType string
	Data     []byte
	URI      string
}

// Decoder turns raw provider text into an artifact. A decoding error marks
// the attempt as failed.
type Decoder interface {
	Decode(raw string) (Artifact, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(raw string) (Artifact, error)

func (f DecoderFunc) Decode(raw string) (Artifact, error) { return f(raw) }

// PlainText accepts any non-blank completion.
var PlainText Decoder = DecoderFunc(func(raw string) (Artifact, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Artifact{}, ErrEmptyArtifact
	}
	return Artifact{Capability: CapabilityText, Text: text, MIMEType: "text/plain"}, nil
})

// Request is an immutable capability request. Build it with NewRequest;
// accessors return copies so adapters cannot alter what the cascade sees.
type Request struct {
	id          string
	capability  Capability
	domain      Domain
	system      string
	prompt      string
	fields      map[string]string
	references  []Reference
	procedure   string
	fallbackKey string
	duration    time.Duration
	size        string
	decoder     Decoder
}

// Option configures a Request under construction.
type Option func(*Request)

// NewRequest builds a request for a capability within a domain.
func NewRequest(capability Capability, domain Domain, opts ...Option) Request {
	req := Request{capability: capability, domain: domain}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

func WithID(id string) Option { return func(r *Request) { r.id = id } }
func WithSystem(system string) Option { return func(r *Request) { r.system = system } }
func WithPrompt(prompt string) Option { return func(r *Request) { r.prompt = prompt } }
func WithProcedure(name string) Option { return func(r *Request) { r.procedure = name } }
func WithFallbackKey(key string) Option { return func(r *Request) { r.fallbackKey = key } }
func WithSize(size string) Option { return func(r *Request) { r.size = size } }
func WithDecoder(decoder Decoder) Option { return func(r *Request) { r.decoder = decoder } }

func WithDuration(d time.Duration) Option { return func(r *Request) { r.duration = d } }

// WithField sets one structured prompt field.
func WithField(key, value string) Option {
	return func(r *Request) {
		if r.fields == nil {
			r.fields = make(map[string]string)
		}
		r.fields[key] = value
	}
}

// WithFields copies the supplied fields into the request.
func WithFields(fields map[string]string) Option {
	return func(r *Request) {
		for k, v := range fields {
			WithField(k, v)(r)
		}
	}
}

// WithReference attaches an input artifact. The payload is copied.
func WithReference(ref Reference) Option {
	return func(r *Request) {
		data := make([]byte, len(ref.Data))
		copy(data, ref.Data)
		ref.Data = data
		r.references = append(r.references, ref)
	}
}

func (r Request) ID() string { return r.id }
func (r Request) Capability() Capability { return r.capability }
func (r Request) Domain() Domain { return r.domain }
func (r Request) System() string { return r.system }
func (r Request) Prompt() string { return r.prompt }
func (r Request) Procedure() string { return r.procedure }
func (r Request) FallbackKey() string { return r.fallbackKey }
func (r Request) Duration() time.Duration { return r.duration }
func (r Request) Size() string { return r.size }
func (r Request) Field(key string) string { return r.fields[key] }
func (r Request) HasReferences() bool { return len(r.references) > 0 }

// Fields returns a copy of the structured prompt fields.
func (r Request) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// FieldKeys returns the field names in sorted order.
func (r Request) FieldKeys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// References returns copies of the attached input artifacts.
func (r Request) References() []Reference {
	out := make([]Reference, len(r.references))
	for i, ref := range r.references {
		data := make([]byte, len(ref.Data))
		copy(data, ref.Data)
		ref.Data = data
		out[i] = ref
	}
	return out
}

// UserContent is the prompt text, or the structured fields rendered one per
// line when no prompt was given.
func (r Request) UserContent() string {
	if strings.TrimSpace(r.prompt) != "" {
		return r.prompt
	}
	var b strings.Builder
	for _, k := range r.FieldKeys() {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(r.fields[k])
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// Decode applies the request's decoder, defaulting to PlainText.
func (r Request) Decode(raw string) (Artifact, error) {
	if r.decoder == nil {
		return PlainText.Decode(raw)
	}
	return r.decoder.Decode(raw)
}
