package ai

import (
	"context"
	"encoding/base64"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/sashabaranov/go-openai"
	"io"
	"log/slog"
	"net/http"
)

const MaxTokens = 4096

// DefaultVoice is used when a character's voice handle is not a known TTS voice.
const DefaultVoice = openai.VoiceAlloy

// Voices lists the voice handles the speech provider accepts.
var Voices = []openai.SpeechVoice{ //nolint:gochecknoglobals // read-only lookup table.
	openai.VoiceAlloy,
	openai.VoiceEcho,
	openai.VoiceFable,
	openai.VoiceOnyx,
	openai.VoiceNova,
	openai.VoiceShimmer,
}

// Config configures the OpenAI-compatible provider.
type Config struct {
	APIKey string
	// BaseURL overrides the provider endpoint, e.g. for a compatible gateway or tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the completion, image and speech providers.
type Client struct {
	client *openai.Client
	apiKey string
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = withErrorBodies(cfg.HTTPClient)
	return &Client{
		client: openai.NewClientWithConfig(config),
		apiKey: cfg.APIKey,
		logger: logger.With(slog.String("source", "ai.Client")),
	}
}

var errMissingCredential = errors.NewSentinel("missing provider API key")

// Complete implements [Completer].
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", &CompletionError{Kind: KindCredential, Raw: "", Err: errMissingCredential}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	request := openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
		Model:     req.Model,
		MaxTokens: MaxTokens,
		Messages:  messages,
	}
	if req.Schema != nil {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{ //nolint:exhaustruct // optional description
				Name:   req.Schema.Name,
				Schema: req.Schema.Definition,
				Strict: false,
			},
		}
	}

	completion, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", classifyProviderError(errors.Wrap(err, "create chat completion", slog.String("model", req.Model)))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "chat completion",
		slog.String("model", req.Model),
		slog.Int("prompt_tokens", completion.Usage.PromptTokens),
		slog.Int("completion_tokens", completion.Usage.CompletionTokens))

	if len(completion.Choices) == 0 {
		return "", &CompletionError{Kind: KindEnvelope, Raw: "", Err: errors.New("response has no choices")}
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", &CompletionError{Kind: KindEnvelope, Raw: "", Err: errors.New("response has no content",
			slog.String("finish_reason", string(completion.Choices[0].FinishReason)))}
	}
	return content, nil
}

// classifyProviderError sorts go-openai errors into provider responses and transport failures.
func classifyProviderError(err error) error {
	var (
		apiErr      *openai.APIError
		requestErr  *openai.RequestError
		providerErr *ProviderError
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &requestErr), errors.As(err, &providerErr):
		return &CompletionError{Kind: KindProvider, Raw: "", Err: err}
	default:
		return &CompletionError{Kind: KindTransport, Raw: "", Err: err}
	}
}

// GenerateImage renders a 1024x1024 PNG for prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errMissingCredential, "generate image")
	}
	request := openai.ImageRequest{ //nolint:exhaustruct // this is better for readability
		Model:          openai.CreateImageModelDallE3,
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	}
	response, err := c.client.CreateImage(ctx, request)
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	if len(response.Data) == 0 {
		return nil, errors.New("image response has no data")
	}
	var imgBytes []byte
	if imgBytes, err = base64.StdEncoding.DecodeString(response.Data[0].B64JSON); err != nil {
		return nil, errors.Wrap(err, "base64 decode image")
	}
	return imgBytes, nil
}

// Synthesize streams MP3 speech of text read with voice. The caller must close the returned reader.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errMissingCredential, "synthesize speech")
	}
	request := openai.CreateSpeechRequest{ //nolint:exhaustruct // this is better for readability
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}
	response, err := c.client.CreateSpeech(ctx, request)
	if err != nil {
		return nil, errors.Wrap(err, "create speech", slog.String("voice", voice))
	}
	return response, nil
}

// SpeechVoice maps a character's opaque voice handle to a provider voice.
func SpeechVoice(voice string) openai.SpeechVoice {
	for _, v := range Voices {
		if string(v) == voice {
			return v
		}
	}
	return DefaultVoice
}
