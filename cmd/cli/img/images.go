package img

import (
	"bytes"
	"fmt"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/logging"
	"github.com/spf13/cobra"
	"image/png"
	"log/slog"
	"os"
	"strings"
)

var Group = &cobra.Group{
	ID:    "img",
	Title: "Image operations",
}

func init() {
	Generate.Flags().String("out", "./out.png", "path to generated image file")
}

var Generate = &cobra.Command{
	Use:     "gen [prompt]",
	GroupID: "img",
	Short:   "Generate image",
	Long:    `Generates an image the same way character portraits are painted.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ai.NewClient(ai.Config{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			HTTPClient: nil,
		}, logging.NewLogger(os.Stderr, slog.LevelInfo))

		imgBytes, err := client.GenerateImage(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("image creation error: %w", err)
		}
		if _, err = png.DecodeConfig(bytes.NewReader(imgBytes)); err != nil {
			return fmt.Errorf("PNG decode error: %w", err)
		}

		outPath, err := cmd.Flags().GetString("out")
		if err != nil {
			return fmt.Errorf("invalid out flag: %w", err)
		}
		if err = os.WriteFile(outPath, imgBytes, 0o600); err != nil { //nolint:mnd // owner read-write
			return fmt.Errorf("file creation error: %w", err)
		}

		cmd.Printf("The image was saved as %s\n", outPath)
		return nil
	},
}
