package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/models"
)

var (
	// ErrPageNotFound is returned for a page index outside the story.
	ErrPageNotFound = errors.New("page not found")
	// ErrPageNotRetryable is returned when retrying a page that has not failed.
	ErrPageNotRetryable = errors.New("only failed pages can be retried")
	// ErrNoImage is returned when a page has no image yet.
	ErrNoImage = errors.New("page has no image")
	// ErrCredentialFailure is returned when retrying a page that failed on a missing provider
	// credential. It matches ErrPageNotRetryable.
	ErrCredentialFailure = fmt.Errorf("%w: the image provider credential is not configured", ErrPageNotRetryable)
)

// subscriberBuffer is the per-subscriber event queue; events beyond it are dropped.
const subscriberBuffer = 32

// Work is one illustration attempt to issue.
type Work struct {
	Index   int
	Prompt  string
	Attempt int
}

// Session owns one live story. Page count and order are fixed at creation;
// only page state, image and error change afterwards.
type Session struct {
	mu      sync.RWMutex
	story   models.Story
	subs    map[int]chan models.PageEvent
	nextSub int
	closed  bool
	// pages that failed on a missing credential; retrying them cannot succeed
	noRetry map[int]bool
}

// New creates a session with every page pending.
func New(prompt string, skeleton *models.StorySkeleton) *Session {
	pages := make([]models.StoryPage, len(skeleton.Pages))
	for i, p := range skeleton.Pages {
		pages[i] = models.StoryPage{
			Index:       i,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
			State:       models.PageStatePending,
		}
	}
	return &Session{
		story: models.Story{
			ID:        uuid.New(),
			Prompt:    prompt,
			Title:     skeleton.Title,
			Pages:     pages,
			CreatedAt: time.Now().UTC(),
		},
		subs:    make(map[int]chan models.PageEvent),
		noRetry: make(map[int]bool),
	}
}

// ID returns the story ID.
func (s *Session) ID() uuid.UUID {
	return s.story.ID
}

// Len returns the page count.
func (s *Session) Len() int {
	return len(s.story.Pages)
}

// Snapshot returns a deep copy of the story with current progress.
func (s *Session) Snapshot() models.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() models.Story {
	out := s.story
	out.Pages = make([]models.StoryPage, len(s.story.Pages))
	for i, p := range s.story.Pages {
		if p.Image != nil {
			img := *p.Image
			p.Image = &img
		}
		out.Pages[i] = p
	}
	out.Progress = s.progressLocked()
	return out
}

func (s *Session) progressLocked() models.Progress {
	pr := models.Progress{Total: len(s.story.Pages)}
	for _, p := range s.story.Pages {
		if p.State.Terminal() {
			pr.Completed++
		}
		if p.State == models.PageStateFailed {
			pr.Failed++
		}
	}
	return pr
}

// Page returns a copy of one page.
func (s *Session) Page(index int) (models.StoryPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.story.Pages) {
		return models.StoryPage{}, ErrPageNotFound
	}
	return s.story.Pages[index], nil
}

// StartPending starts the first attempt of every pending page that has none yet and returns the work to issue.
// Pages already in flight are skipped, so calling it twice never issues a page twice.
func (s *Session) StartPending() []Work {
	s.mu.Lock()
	defer s.mu.Unlock()
	var work []Work
	for i := range s.story.Pages {
		p := &s.story.Pages[i]
		if p.State != models.PageStatePending || p.Attempts > 0 {
			continue
		}
		p.Attempts = 1
		work = append(work, Work{Index: i, Prompt: p.ImagePrompt, Attempt: p.Attempts})
	}
	return work
}

// Retry moves a failed page back to pending and returns the attempt to issue with the same prompt.
func (s *Session) Retry(index int) (Work, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.story.Pages) {
		s.mu.Unlock()
		return Work{}, ErrPageNotFound
	}
	p := &s.story.Pages[index]
	if p.State != models.PageStateFailed {
		s.mu.Unlock()
		return Work{}, ErrPageNotRetryable
	}
	if s.noRetry[index] {
		s.mu.Unlock()
		return Work{}, ErrCredentialFailure
	}
	p.State = models.PageStatePending
	p.Error = ""
	p.Image = nil
	p.Attempts++
	w := Work{Index: index, Prompt: p.ImagePrompt, Attempt: p.Attempts}
	s.broadcastLocked(models.PageEvent{StoryID: s.story.ID, Page: *p, Progress: s.progressLocked()})
	s.mu.Unlock()
	return w, nil
}

// Complete records the outcome of an attempt. Exactly one of img and err is non-nil.
// It returns false when the attempt is stale or the page already left pending.
func (s *Session) Complete(w Work, img *models.GeneratedImage, err error) (models.PageEvent, bool) {
	s.mu.Lock()
	if w.Index < 0 || w.Index >= len(s.story.Pages) {
		s.mu.Unlock()
		return models.PageEvent{}, false
	}
	p := &s.story.Pages[w.Index]
	if p.State != models.PageStatePending || p.Attempts != w.Attempt {
		s.mu.Unlock()
		return models.PageEvent{}, false
	}
	if err != nil {
		p.State = models.PageStateFailed
		p.Error = err.Error()
		p.Image = nil
		if errors.Is(err, llm.ErrMissingCredential) {
			s.noRetry[w.Index] = true
		}
	} else {
		p.State = models.PageStateDone
		p.Error = ""
		p.Image = img
	}
	ev := models.PageEvent{StoryID: s.story.ID, Page: *p, Progress: s.progressLocked()}
	s.broadcastLocked(ev)
	s.mu.Unlock()
	return ev, true
}

// Subscribe returns a channel of page events and a func to stop receiving them.
// Events are dropped for a subscriber whose buffer is full; it can re-read Snapshot.
// The channel is closed when the session is closed.
func (s *Session) Subscribe() (<-chan models.PageEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan models.PageEvent, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// broadcastLocked queues ev for every subscriber without blocking. Called with mu held, so
// subscribers see events in the order the page transitions happened.
func (s *Session) broadcastLocked(ev models.PageEvent) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Later completions still update the story.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
