package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	story := &models.Story{
		ID:    uuid.New(),
		Title: "Robo the Painter",
		Pages: []models.StoryPage{
			{Index: 0, Text: "Robo wakes up.", ImagePrompt: "robot waking", State: models.PageStateDone,
				Image: &models.GeneratedImage{Data: []byte("jpeg-bytes"), MimeType: "image/jpeg"}},
			{Index: 1, Text: "Robo paints.", ImagePrompt: "robot painting", State: models.PageStateFailed, Error: "Model is loading"},
		},
	}

	require.NoError(t, writeStory(dir, story))

	img, err := os.ReadFile(filepath.Join(dir, "page-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(img))

	_, err = os.Stat(filepath.Join(dir, "page-2.bin"))
	assert.True(t, os.IsNotExist(err))

	md, err := os.ReadFile(filepath.Join(dir, "story.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Robo the Painter\n"))
	assert.Contains(t, string(md), "](page-1.jpg)")
	assert.Contains(t, string(md), "Illustration unavailable: Model is loading")
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["image"])
	assert.True(t, names["story"])
	assert.True(t, names["events"])
}
