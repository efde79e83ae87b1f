// Package portraits paints the characters of an accepted world.
package portraits

import (
	"bytes"
	"context"
	"fmt"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"golang.org/x/sync/errgroup"
	"image/png"
	"log/slog"
	"sync/atomic"
)

// DefaultConcurrency limits parallel image requests per world.
const DefaultConcurrency = 3

type Store interface {
	Put(ctx context.Context, worldID string, characterID world.CharacterID, image []byte) error
}

type Painter struct {
	images      ai.ImageGenerator
	store       Store
	concurrency int
	logger      *slog.Logger
}

func NewPainter(images ai.ImageGenerator, store Store, logger *slog.Logger) *Painter {
	return &Painter{
		images:      images,
		store:       store,
		concurrency: DefaultConcurrency,
		logger:      logger.With(slog.String("source", "Painter")),
	}
}

// PaintAll stores a portrait for every character that can be interviewed and returns how many were stored.
// A portrait that fails is logged and skipped so one bad image never costs the others.
func (p *Painter) PaintAll(ctx context.Context, worldID string, w world.World) (int, error) {
	var (
		g       errgroup.Group
		painted atomic.Int32
	)
	g.SetLimit(p.concurrency)
	for _, character := range w.Payload().Characters {
		if character.IsVictim() {
			continue
		}
		g.Go(func() error {
			attrs := []slog.Attr{slog.String("world_id", worldID), slog.String("character_id", string(character.ID))}
			if err := p.paint(ctx, worldID, w.Mystery, character); err != nil {
				attrs = append(attrs, errors.SlogError(err))
				p.logger.LogAttrs(ctx, slog.LevelWarn, "portrait skipped", attrs...)
				return nil
			}
			painted.Add(1)
			p.logger.LogAttrs(ctx, slog.LevelDebug, "portrait stored", attrs...)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return int(painted.Load()), errors.Wrap(err, "paint portraits", slog.String("world_id", worldID))
	}
	return int(painted.Load()), nil
}

func (p *Painter) paint(ctx context.Context, worldID string, mystery world.Mystery, character world.Character) error {
	var (
		image []byte
		err   error
	)
	if image, err = p.images.GenerateImage(ctx, Prompt(mystery, character)); err != nil {
		return errors.Wrap(err, "generate portrait")
	}
	if _, err = png.DecodeConfig(bytes.NewReader(image)); err != nil {
		return errors.Wrap(err, "decode portrait")
	}
	if err = p.store.Put(ctx, worldID, character.ID, image); err != nil {
		return errors.Wrap(err, "store portrait")
	}
	return nil
}

// Prompt describes a character portrait in the setting of the mystery.
func Prompt(mystery world.Mystery, character world.Character) string {
	return fmt.Sprintf("A painted head-and-shoulders portrait of %s, %s. Their manner: %s. "+
		"The scene belongs to the mystery %q: %s. Muted period colours, no text, no lettering.",
		character.Name, character.Description, character.Personality, mystery.Title, mystery.Description)
}
