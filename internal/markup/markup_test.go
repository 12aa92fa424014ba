package markup

import (
	"strings"
	"testing"

	"github.com/snappy-loop/storybook/internal/models"
)

func testStory() models.Story {
	return models.Story{
		Title:  "Robo the Painter",
		Prompt: "a robot\nlearns to paint",
		Pages: []models.StoryPage{
			{Index: 0, Text: "Robo found a brush.", ImagePrompt: "robot [silver]", State: models.PageStateDone,
				Image: &models.GeneratedImage{Data: []byte{1}, MimeType: "image/png"}},
			{Index: 1, Text: "Robo <painted> the sky.", ImagePrompt: "sky", State: models.PageStateFailed, Error: "Service Unavailable"},
			{Index: 2, Text: "Robo rested.", ImagePrompt: "nap", State: models.PageStatePending},
		},
	}
}

func TestStoryMarkdown(t *testing.T) {
	got := StoryMarkdown(testStory(), FileRef)

	for _, want := range []string{
		"# Robo the Painter\n",
		"_A story about: a robot learns to paint_",
		"## Page 1\n\n![robot \\[silver\\]](page-1.png)\n\nRobo found a brush.",
		"## Page 2\n\n> Illustration unavailable: Service Unavailable",
		"## Page 3\n\nRobo rested.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("StoryMarkdown() missing %q in:\n%s", want, got)
		}
	}
	if strings.Count(got, "![") != 1 {
		t.Errorf("only done pages have images:\n%s", got)
	}
}

func TestStoryHTML_Escapes(t *testing.T) {
	got := StoryHTML(testStory(), DataURLRef)

	if strings.Contains(got, "<painted>") {
		t.Errorf("page text must be escaped:\n%s", got)
	}
	if !strings.Contains(got, `src="data:image/png;base64,AQ=="`) {
		t.Errorf("done page should inline its image:\n%s", got)
	}
	if !strings.Contains(got, `<p class="page-error">Service Unavailable</p>`) {
		t.Errorf("failed page should show its error:\n%s", got)
	}
	if !strings.Contains(got, `class="page page-pending"`) {
		t.Errorf("pending page should be marked:\n%s", got)
	}
}

func TestPageFileName(t *testing.T) {
	tests := []struct {
		page models.StoryPage
		want string
	}{
		{models.StoryPage{Index: 0, Image: &models.GeneratedImage{MimeType: "image/webp"}}, "page-1.webp"},
		{models.StoryPage{Index: 3, Image: &models.GeneratedImage{MimeType: "image/jpeg"}}, "page-4.jpg"},
		{models.StoryPage{Index: 1}, "page-2.bin"},
	}
	for _, tt := range tests {
		if got := PageFileName(tt.page); got != tt.want {
			t.Errorf("PageFileName(%d) = %q, want %q", tt.page.Index, got, tt.want)
		}
	}
}
