package main

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/myrjola/casefile/cmd/cli/img"
	"github.com/myrjola/casefile/cmd/cli/mystery"
	"github.com/spf13/cobra"
	"os"
)

func init() {
	// The .env file is optional. The environment may already hold everything.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(img.Group)
	rootCmd.AddCommand(img.Generate)
	rootCmd.AddGroup(mystery.Group)
	rootCmd.AddCommand(mystery.Generate, mystery.Validate)
}

var rootCmd = &cobra.Command{
	Use:  "casefile-cli",
	Long: `Command line utilities for Casefile, the murder mystery engine.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
