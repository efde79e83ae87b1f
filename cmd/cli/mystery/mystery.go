// Package mystery holds the world generation commands.
package mystery

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/logging"
	"github.com/myrjola/casefile/internal/world"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
)

var Group = &cobra.Group{
	ID:    "world",
	Title: "World operations",
}

func init() {
	Generate.Flags().String("theme", "", "theme of the mystery")
	Generate.Flags().String("setting", "", "where and when the mystery takes place")
	Generate.Flags().String("difficulty", "", "how hard the mystery should be")
	Generate.Flags().String("model", "gpt-4o", "completion model")
	Generate.Flags().Int("max-attempts", generation.DefaultMaxAttempts, "attempts before giving up")
	Generate.Flags().String("out", "", "path to the world JSON file, stdout when empty")
}

var Generate = &cobra.Command{
	Use:     "generate",
	GroupID: "world",
	Short:   "Generate a mystery world",
	Long:    `Generates a mystery world, repairing invalid candidates until one passes validation.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		var (
			theme, _       = flags.GetString("theme")
			setting, _     = flags.GetString("setting")
			difficulty, _  = flags.GetString("difficulty")
			model, _       = flags.GetString("model")
			maxAttempts, _ = flags.GetInt("max-attempts")
			outPath, _     = flags.GetString("out")
			logger         = logging.NewLogger(os.Stderr, slog.LevelInfo)
		)
		client := ai.NewClient(ai.Config{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			HTTPClient: nil,
		}, logger)
		generator := generation.NewGenerator(client,
			generation.Config{Model: model, MaxAttempts: maxAttempts}, nil, nil, logger)

		result, err := generator.Generate(cmd.Context(), generation.Options{
			Theme:      theme,
			Setting:    setting,
			Difficulty: difficulty,
			Owner:      "",
			Progress: func(e generation.Event) {
				cmd.PrintErrf("attempt %d: %s %s\n", e.Attempt, e.Kind, e.Message)
			},
		})
		if err != nil {
			return errors.Wrap(err, "generate world")
		}

		out, err := json.MarshalIndent(result.Payload, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode world")
		}
		if outPath == "" {
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return errors.Wrap(err, "write world")
		}
		if err = os.WriteFile(outPath, out, 0o600); err != nil { //nolint:mnd // owner read-write
			return errors.Wrap(err, "write world", slog.String("path", outPath))
		}
		cmd.PrintErrf("%q was saved as %s after %d attempts\n", result.Payload.Mystery.Title, outPath, result.Attempts)
		return nil
	},
}

var Validate = &cobra.Command{
	Use:     "validate [file]",
	GroupID: "world",
	Short:   "Validate a mystery world",
	Long:    `Runs every world check on a JSON file, or stdin when no file is given, and explains the first failure.`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			candidate []byte
			err       error
		)
		if len(args) == 0 {
			candidate, err = io.ReadAll(cmd.InOrStdin())
		} else {
			candidate, err = os.ReadFile(args[0])
		}
		if err != nil {
			return errors.Wrap(err, "read world")
		}

		if err = world.Validate(candidate); err != nil {
			var validationErr *world.ValidationError
			if !errors.As(err, &validationErr) {
				return err
			}
			correction := generation.Classify(validationErr.Msg)
			cmd.Printf("invalid (%s): %s\n\n%s\n", correction.Category, validationErr.Msg, correction.Instruction())
			return fmt.Errorf("world is invalid: %w", err)
		}
		cmd.Println("valid")
		return nil
	},
}
