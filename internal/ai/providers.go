package ai

import (
	"context"
	"io"
)

// ImageGenerator renders an image for a free-text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// SpeechSynthesizer reads text aloud with an opaque voice handle and streams the audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) (io.ReadCloser, error)
}

var (
	_ Completer         = (*Client)(nil)
	_ ImageGenerator    = (*Client)(nil)
	_ SpeechSynthesizer = (*Client)(nil)
)
