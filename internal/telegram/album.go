package telegram

import (
	"sync"
	"time"
)

// albumPhoto is one member of a Telegram media group.
type albumPhoto struct {
	userID     int64
	telegramID int64
	chatID     int64
	fileID     string
	caption    string
}

// album is a fully collected media group handed to the flush callback.
type album struct {
	userID     int64
	telegramID int64
	chatID     int64
	caption    string
	fileIDs    []string
}

// albumCollector buffers photos that arrive under one media-group id.
// Telegram delivers album members as separate messages with no terminator,
// so the collector waits for a quiet period after the last arrival; each new
// member resets the timer.
type albumCollector struct {
	mu          sync.Mutex
	quietPeriod time.Duration
	maxImages   int
	pending     map[string]*pendingAlbum
	flush       func(album)
}

type pendingAlbum struct {
	album album
	timer *time.Timer
}

func newAlbumCollector(quietPeriod time.Duration, maxImages int, flush func(album)) *albumCollector {
	if quietPeriod <= 0 {
		quietPeriod = 1500 * time.Millisecond
	}
	return &albumCollector{
		quietPeriod: quietPeriod,
		maxImages:   maxImages,
		pending:     make(map[string]*pendingAlbum),
		flush:       flush,
	}
}

func (c *albumCollector) add(groupID string, photo albumPhoto) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[groupID]
	if !ok {
		p = &pendingAlbum{
			album: album{
				userID:     photo.userID,
				telegramID: photo.telegramID,
				chatID:     photo.chatID,
			},
		}
		p.timer = time.AfterFunc(c.quietPeriod, func() {
			c.fire(groupID)
		})
		c.pending[groupID] = p
	}

	p.album.fileIDs = append(p.album.fileIDs, photo.fileID)
	if p.album.caption == "" && photo.caption != "" {
		p.album.caption = photo.caption
	}
	p.timer.Reset(c.quietPeriod)
}

func (c *albumCollector) fire(groupID string) {
	c.mu.Lock()
	p, ok := c.pending[groupID]
	if ok {
		delete(c.pending, groupID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.flush(p.album)
}
