// Package notify keeps the short-lived notices shown in the footer: login
// and upload results, the fallback-data warning and the "dataset connected"
// confirmation. Every notice expires on its own TTL.
package notify

import (
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// Default lifetimes.
const (
	ToastTTL     = 4 * time.Second
	ConnectedTTL = 3 * time.Second
)

// Level grades a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is one entry in the tray.
type Notice struct {
	ID      string
	Level   Level
	Text    string
	Created time.Time
	TTL     time.Duration
	seq     uint64
}

// Tray is safe for concurrent use. Expired notices are dropped lazily when
// the tray is read; there is no background janitor.
type Tray struct {
	items *cache.Cache
	seq   atomic.Uint64
}

// NewTray builds an empty tray whose notices default to ToastTTL.
func NewTray() *Tray {
	return &Tray{items: cache.New(ToastTTL, 0)}
}

// Push adds a notice. A non-positive ttl uses ToastTTL.
func (t *Tray) Push(level Level, text string, ttl time.Duration) Notice {
	if ttl <= 0 {
		ttl = ToastTTL
	}
	seq := t.seq.Add(1)
	n := Notice{
		ID:      strconv.FormatUint(seq, 10),
		Level:   level,
		Text:    text,
		Created: time.Now(),
		TTL:     ttl,
		seq:     seq,
	}
	t.items.Set(n.ID, n, ttl)
	return n
}

// Active returns live notices, oldest first.
func (t *Tray) Active() []Notice {
	t.items.DeleteExpired()
	items := t.items.Items()
	out := make([]Notice, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(Notice); ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Latest returns the newest live notice.
func (t *Tray) Latest() (Notice, bool) {
	active := t.Active()
	if len(active) == 0 {
		return Notice{}, false
	}
	return active[len(active)-1], true
}

// Dismiss removes a notice before its TTL.
func (t *Tray) Dismiss(id string) {
	t.items.Delete(id)
}

// Clear removes every notice.
func (t *Tray) Clear() {
	t.items.Flush()
}
