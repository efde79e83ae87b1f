// Package aitest provides test doubles for the completion, image and speech providers.
package aitest

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"io"
	"log/slog"
	"sync"
)

// Response is a scripted reply. Exactly one of Content or Err is used.
type Response struct {
	Content string
	Err     error
}

// Reply is a helper for a successful scripted response.
func Reply(content string) Response {
	return Response{Content: content, Err: nil}
}

// ReplyJSON marshals v into a successful scripted response. It panics if v cannot be marshalled.
func ReplyJSON(v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply(string(b))
}

// Fail is a helper for a scripted error.
func Fail(err error) Response {
	return Response{Content: "", Err: err}
}

// Completer is a scripted [ai.Completer] that records every request.
//
// Responses are served in order from Script. Requests with a schema whose name has an entry in BySchema are
// served from that queue instead, which keeps concurrent structured calls deterministic.
type Completer struct {
	mu       sync.Mutex
	script   []Response
	bySchema map[string][]Response
	requests []ai.Request
}

func NewCompleter(script ...Response) *Completer {
	return &Completer{
		mu:       sync.Mutex{},
		script:   script,
		bySchema: map[string][]Response{},
		requests: nil,
	}
}

// OnSchema queues responses for requests using the named schema.
func (c *Completer) OnSchema(name string, responses ...Response) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySchema[name] = append(c.bySchema[name], responses...)
	return c
}

// Complete implements [ai.Completer].
func (c *Completer) Complete(_ context.Context, req ai.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Copy messages so later transcript mutations by the caller don't leak into the recording.
	recorded := req
	recorded.Messages = append([]ai.Message(nil), req.Messages...)
	c.requests = append(c.requests, recorded)

	var response Response
	switch {
	case req.Schema != nil && len(c.bySchema[req.Schema.Name]) > 0:
		queue := c.bySchema[req.Schema.Name]
		response, c.bySchema[req.Schema.Name] = queue[0], queue[1:]
	case len(c.script) > 0:
		response, c.script = c.script[0], c.script[1:]
	default:
		schemaName := ""
		if req.Schema != nil {
			schemaName = req.Schema.Name
		}
		return "", &ai.CompletionError{
			Kind: ai.KindTransport,
			Raw:  "",
			Err:  errors.New("no scripted response left", slog.String("schema", schemaName)),
		}
	}
	return response.Content, response.Err
}

// Requests returns the recorded requests in call order.
func (c *Completer) Requests() []ai.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ai.Request(nil), c.requests...)
}

// Calls returns the number of recorded requests.
func (c *Completer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// RequestsForSchema returns the recorded requests that used the named schema.
func (c *Completer) RequestsForSchema(name string) []ai.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ai.Request
	for _, req := range c.requests {
		if req.Schema != nil && req.Schema.Name == name {
			out = append(out, req)
		}
	}
	return out
}

// ImageGenerator returns the same image bytes for every prompt and records the prompts.
type ImageGenerator struct {
	mu      sync.Mutex
	Image   []byte
	Err     error
	prompts []string
}

func (g *ImageGenerator) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Image, nil
}

func (g *ImageGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// SpeechSynthesizer streams Audio for every request.
type SpeechSynthesizer struct {
	Audio     []byte
	LastVoice string
}

func (s *SpeechSynthesizer) Synthesize(_ context.Context, _ string, voice string) (io.ReadCloser, error) {
	s.LastVoice = voice
	return io.NopCloser(bytes.NewReader(s.Audio)), nil
}

var (
	_ ai.Completer         = (*Completer)(nil)
	_ ai.ImageGenerator    = (*ImageGenerator)(nil)
	_ ai.SpeechSynthesizer = (*SpeechSynthesizer)(nil)
)
