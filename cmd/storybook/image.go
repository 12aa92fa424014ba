package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/snappy-loop/storybook/internal/agents"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/spf13/cobra"
)

func newImageCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate one image and write it to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt is required")
			}

			images, err := agents.NewImageAgent(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			img, err := images.GenerateImage(cmd.Context(), prompt)
			if err != nil {
				return fmt.Errorf("%s: %w", images.Name(), err)
			}

			if output == "" {
				output = "image" + img.Extension()
			}
			if err := os.WriteFile(output, img.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes)\n", output, img.MimeType, len(img.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default image.<ext>)")
	return cmd
}
