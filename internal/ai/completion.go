package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/sashabaranov/go-openai/jsonschema"
	"log/slog"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Schema instructs the provider to return JSON conforming to Definition.
type Schema struct {
	Name       string
	Definition json.Marshaler
}

// Request is a single chat completion call.
//
// When Schema is nil the completion is free text.
type Request struct {
	Model    string
	Messages []Message
	Schema   *Schema
}

// Completer generates the next assistant turn for a transcript.
//
// Implementations make exactly one attempt per call and report failures as [*CompletionError].
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ErrorKind string

const (
	// KindCredential means the provider credential is missing. No network call was made.
	KindCredential ErrorKind = "credential"
	// KindTransport covers network failures before a provider response was received.
	KindTransport ErrorKind = "transport"
	// KindProvider covers non-2xx responses and error objects reported by the provider.
	KindProvider ErrorKind = "provider"
	// KindEnvelope means the response lacked choices or content.
	KindEnvelope ErrorKind = "envelope"
	// KindDecode means the structured output was not valid JSON for the requested shape.
	KindDecode ErrorKind = "decode"
)

// CompletionError is the single error kind surfaced by completion calls so that callers can apply uniform handling.
type CompletionError struct {
	Kind ErrorKind
	// Raw is the unparsed completion for KindDecode errors.
	Raw string
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s error: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// LogValue includes the kind in log events.
func (e *CompletionError) LogValue() slog.Value {
	return slog.GroupValue(slog.String("kind", string(e.Kind)), slog.String("msg", e.Err.Error()))
}

// IsKind reports whether err is a [*CompletionError] of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var completionErr *CompletionError
	return errors.As(err, &completionErr) && completionErr.Kind == kind
}

// SchemaFor derives a JSON schema named name from the Go type T.
//
// Providers only accept object roots, so T should be a struct. List results are wrapped in a field.
func SchemaFor[T any](name string) (Schema, error) {
	var v T
	definition, err := jsonschema.GenerateSchemaForType(v)
	if err != nil {
		return Schema{}, errors.Wrap(err, "generate schema", slog.String("name", name))
	}
	return Schema{Name: name, Definition: definition}, nil
}

// MustSchemaFor is like [SchemaFor] but panics on error. It is meant for package level schema variables.
func MustSchemaFor[T any](name string) Schema {
	schema, err := SchemaFor[T](name)
	if err != nil {
		panic(err)
	}
	return schema
}

// Structured performs a schema-constrained completion and decodes the result into T.
//
// A response that is not valid JSON for T is reported as a [*CompletionError] of kind [KindDecode] that carries
// the raw completion.
func Structured[T any](ctx context.Context, completer Completer, req Request) (T, error) {
	var (
		out T
		raw string
		err error
	)
	if req.Schema == nil {
		return out, errors.New("structured completion requires a schema")
	}
	if raw, err = completer.Complete(ctx, req); err != nil {
		return out, errors.Wrap(err, "complete", slog.String("schema", req.Schema.Name))
	}
	if err = json.Unmarshal([]byte(raw), &out); err != nil {
		return out, &CompletionError{
			Kind: KindDecode,
			Raw:  raw,
			Err:  errors.Wrap(err, "decode structured output", slog.String("schema", req.Schema.Name)),
		}
	}
	return out, nil
}
