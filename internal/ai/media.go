package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

// ArtifactSink persists downloaded media and returns where it can be found.
type ArtifactSink interface {
	Put(ctx context.Context, procedure, ext, contentType string, body io.Reader) (string, error)
}

const sniffLength = 3072

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// callJSON performs a request and decodes a 2xx JSON body into out.
func callJSON(provider string, resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &StatusError{Provider: provider, Code: resp.StatusCode(), Body: resp.String()}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s response: %v", ErrMalformed, provider, err)
	}
	return nil
}

// download fetches a media resource in full.
func download(ctx context.Context, provider string, client *resty.Client, url string, headers map[string]string) ([]byte, string, error) {
	if strings.TrimSpace(url) == "" {
		return nil, "", fmt.Errorf("%w: %s result has no url", ErrMalformed, provider)
	}
	resp, err := client.R().SetContext(ctx).SetHeaders(headers).SetHeader("Accept", "*/*").Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("%s download: %w", provider, err)
	}
	if resp.IsError() {
		return nil, "", &StatusError{Provider: provider, Code: resp.StatusCode(), Body: resp.String()}
	}
	data := resp.Body()
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s download: %w", provider, ErrEmptyArtifact)
	}
	return data, mimetype.Detect(data).String(), nil
}

// persist streams a media resource into the sink without buffering it whole.
func persist(ctx context.Context, provider string, client *resty.Client, sink ArtifactSink, url, procedure string, headers map[string]string) (Artifact, error) {
	if sink == nil {
		return Artifact{}, errors.New("no artifact sink configured")
	}
	if strings.TrimSpace(url) == "" {
		return Artifact{}, fmt.Errorf("%w: %s result has no url", ErrMalformed, provider)
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Accept", "*/*").
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s download: %w", provider, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		payload, _ := io.ReadAll(io.LimitReader(body, 4096))
		return Artifact{}, &StatusError{Provider: provider, Code: resp.StatusCode(), Body: string(payload)}
	}

	reader := bufio.NewReaderSize(body, sniffLength)
	head, err := reader.Peek(sniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Artifact{}, fmt.Errorf("%s download: %w", provider, err)
	}
	if len(head) == 0 {
		return Artifact{}, fmt.Errorf("%s download: %w", provider, ErrEmptyArtifact)
	}
	mt := mimetype.Detect(head)
	ext := mt.Extension()
	if ext == "" {
		ext = ".bin"
	}

	location, err := sink.Put(ctx, procedure, ext, mt.String(), reader)
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s artifact: %w", provider, err)
	}
	return Artifact{Capability: CapabilityVideo, Location: location, MIMEType: mt.String()}, nil
}
