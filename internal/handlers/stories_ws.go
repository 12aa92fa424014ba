package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/models"
)

const (
	storyWSReadLimit    = 4 << 10
	storyWSPongWait     = 60 * time.Second
	storyWSPingInterval = 50 * time.Second
	storyWSWriteWait    = 10 * time.Second
)

var storyWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// storyWSMessage is the JSON shape sent to the client.
type storyWSMessage struct {
	Type  string            `json:"type"` // snapshot, page, closed
	Story *models.Story     `json:"story,omitempty"`
	Event *models.PageEvent `json:"event,omitempty"`
}

// StoryWS handles GET /api/stories/{id}/ws: sends the current snapshot, then one message per page
// state change until the client disconnects or the story expires.
func (h *Handler) StoryWS(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	snapshot, events, cancel, err := h.stories.Subscribe(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer cancel()

	conn, err := storyWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("story_id", id.String()).Msg("story ws upgrade failed")
		return
	}
	defer conn.Close()

	// The client sends nothing but control frames; reading detects the disconnect.
	gone := make(chan struct{})
	conn.SetReadLimit(storyWSReadLimit)
	conn.SetReadDeadline(time.Now().Add(storyWSPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(storyWSPongWait))
		return nil
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Str("story_id", id.String()).Msg("story ws read")
				}
				return
			}
		}
	}()

	if err := writeWSJSON(conn, storyWSMessage{Type: "snapshot", Story: snapshot}); err != nil {
		return
	}

	ping := time.NewTicker(storyWSPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = writeWSJSON(conn, storyWSMessage{Type: "closed"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "story closed"),
					time.Now().Add(storyWSWriteWait))
				return
			}
			if err := writeWSJSON(conn, storyWSMessage{Type: "page", Event: &ev}); err != nil {
				log.Debug().Err(err).Str("story_id", id.String()).Msg("story ws write")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(storyWSWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(storyWSWriteWait))
	return conn.WriteJSON(v)
}
