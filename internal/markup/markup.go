package markup

import (
	"fmt"
	"html"
	"strings"

	"github.com/snappy-loop/storybook/internal/models"
)

// ImageRef returns how a page image is referenced from rendered output ("" to omit the image).
type ImageRef func(p models.StoryPage) string

// FileRef references page images as page-N.<ext> next to the rendered file.
func FileRef(p models.StoryPage) string {
	if p.Image == nil {
		return ""
	}
	return PageFileName(p)
}

// DataURLRef inlines page images as data: URLs.
func DataURLRef(p models.StoryPage) string {
	if p.Image == nil {
		return ""
	}
	return p.Image.DataURL()
}

// PageFileName is the file name of a page image, numbered from 1.
func PageFileName(p models.StoryPage) string {
	ext := ".bin"
	if p.Image != nil {
		ext = p.Image.Extension()
	}
	return fmt.Sprintf("page-%d%s", p.Index+1, ext)
}

// StoryMarkdown renders a story as Markdown: title, then one section per page with its illustration and text.
// Failed pages carry a note instead of an image.
func StoryMarkdown(story models.Story, ref ImageRef) string {
	var b strings.Builder
	title := story.Title
	if title == "" {
		title = "Untitled story"
	}
	b.WriteString("# " + oneLine(title) + "\n\n")
	if story.Prompt != "" {
		b.WriteString("_A story about: " + oneLine(story.Prompt) + "_\n\n")
	}

	for _, p := range story.Pages {
		fmt.Fprintf(&b, "## Page %d\n\n", p.Index+1)
		if src := ref(p); src != "" {
			fmt.Fprintf(&b, "![%s](%s)\n\n", escapeAlt(p.ImagePrompt), src)
		} else if p.State == models.PageStateFailed {
			b.WriteString("> Illustration unavailable: " + oneLine(p.Error) + "\n\n")
		}
		if p.Text != "" {
			b.WriteString(strings.TrimSpace(p.Text) + "\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// StoryHTML renders a story as a standalone HTML page. All story text is escaped.
func StoryHTML(story models.Story, ref ImageRef) string {
	title := story.Title
	if title == "" {
		title = "Untitled story"
	}
	title = html.EscapeString(title)

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
	b.WriteString(title)
	b.WriteString(`</title></head><body><h1 class="story-title">`)
	b.WriteString(title)
	b.WriteString(`</h1>`)
	for _, p := range story.Pages {
		fmt.Fprintf(&b, `<section class="page page-%s" data-page="%d">`, p.State, p.Index+1)
		switch src := ref(p); {
		case src != "":
			b.WriteString(`<img class="page-image" src="`)
			b.WriteString(html.EscapeString(src))
			b.WriteString(`" alt="`)
			b.WriteString(html.EscapeString(p.ImagePrompt))
			b.WriteString(`">`)
		case p.State == models.PageStateFailed:
			b.WriteString(`<p class="page-error">`)
			b.WriteString(html.EscapeString(p.Error))
			b.WriteString(`</p>`)
		case p.State == models.PageStatePending:
			b.WriteString(`<p class="page-loading">Painting this page&hellip;</p>`)
		}
		b.WriteString(`<p class="page-text">`)
		b.WriteString(strings.ReplaceAll(html.EscapeString(strings.TrimSpace(p.Text)), "\n", "<br>"))
		b.WriteString(`</p></section>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeAlt keeps image alt text from closing the Markdown link syntax.
func escapeAlt(s string) string {
	r := strings.NewReplacer("[", `\[`, "]", `\]`, "\n", " ")
	return r.Replace(strings.TrimSpace(s))
}
