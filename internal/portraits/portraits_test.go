package portraits_test

import (
	"bytes"
	"context"
	"github.com/myrjola/casefile/internal/ai/aitest"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/portraits"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/myrjola/casefile/internal/world"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"github.com/stretchr/testify/require"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
)

type memoryStore struct {
	mu     sync.Mutex
	images map[world.CharacterID][]byte
}

func (s *memoryStore) Put(_ context.Context, _ string, characterID world.CharacterID, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[characterID] = image
	return nil
}

// pickyGenerator fails for prompts mentioning refuse.
type pickyGenerator struct {
	aitest.ImageGenerator
	refuse string
}

func (g *pickyGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.Contains(prompt, g.refuse) {
		return nil, errors.New("content policy")
	}
	return g.ImageGenerator.GenerateImage(ctx, prompt)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func TestPainter_PaintAll(t *testing.T) {
	tests := []struct {
		name      string
		images    func(t *testing.T) *pickyGenerator
		wantCount int
		wantNot   []world.CharacterID
	}{
		{
			name: "every character but the victim",
			images: func(t *testing.T) *pickyGenerator {
				return &pickyGenerator{ImageGenerator: aitest.ImageGenerator{Image: pngBytes(t)}, refuse: "\x00"}
			},
			wantCount: 7,
			wantNot:   []world.CharacterID{worldtest.Victim},
		},
		{
			name: "failed portrait is skipped",
			images: func(t *testing.T) *pickyGenerator {
				return &pickyGenerator{ImageGenerator: aitest.ImageGenerator{Image: pngBytes(t)}, refuse: "Mr. Hughes"}
			},
			wantCount: 6,
			wantNot:   []world.CharacterID{worldtest.Victim, worldtest.Culprit},
		},
		{
			name: "non-PNG images are not stored",
			images: func(*testing.T) *pickyGenerator {
				return &pickyGenerator{ImageGenerator: aitest.ImageGenerator{Image: []byte("<html>")}, refuse: "\x00"}
			},
			wantCount: 0,
			wantNot:   []world.CharacterID{worldtest.Witness},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ctx    = context.Background()
				store  = &memoryStore{images: map[world.CharacterID][]byte{}}
				images = tt.images(t)
				p      = portraits.NewPainter(images, store, testhelpers.NewLogger(io.Discard))
			)
			count, err := p.PaintAll(ctx, "world-1", worldtest.World())
			require.NoError(t, err)
			require.Equal(t, tt.wantCount, count)
			require.Len(t, store.images, tt.wantCount)
			for _, id := range tt.wantNot {
				require.NotContains(t, store.images, id)
			}
			for _, prompt := range images.Prompts() {
				require.NotContains(t, prompt, "Lord Blackwood,", "victims are never painted")
			}
		})
	}
}

func TestPainter_PaintAll_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memoryStore{images: map[world.CharacterID][]byte{}}
	p := portraits.NewPainter(&aitest.ImageGenerator{Image: pngBytes(t)}, store, testhelpers.NewLogger(io.Discard))
	_, err := p.PaintAll(ctx, "world-1", worldtest.World())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPrompt(t *testing.T) {
	w := worldtest.World()
	character, ok := w.Character(worldtest.Witness)
	require.True(t, ok)
	prompt := portraits.Prompt(w.Mystery, character)
	require.Contains(t, prompt, "Ellis")
	require.Contains(t, prompt, "The Blackwood Manor Affair")
	require.NotContains(t, prompt, w.Solution.Motive)
}
