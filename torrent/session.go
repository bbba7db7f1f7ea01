// Package torrent implements torrent lifecycle commands on top of an
// external engine session.
package torrent

import "errors"

// ErrInvalidInfoHash is returned for an empty info hash.
var ErrInvalidInfoHash = errors.New("torrent: info hash is required")

// ErrNotFound is returned when the session has no torrent with the hash.
var ErrNotFound = errors.New("torrent: not found")

// Handle is one torrent inside the engine.
type Handle interface {
	InfoHash() string
	Name() string
	Paused() bool
}

// Session is the boundary to the torrent engine. Implementations must be
// safe for concurrent use.
type Session interface {
	FindTorrent(infoHash string) (Handle, bool)
	RemoveTorrent(h Handle, removeData bool) error
	Resume(h Handle) error
	Pause(h Handle) error
	Torrents() []Handle
}

// Info is the RPC view of a torrent.
type Info struct {
	InfoHash string `json:"infoHash"`
	Name     string `json:"name"`
	State    State  `json:"state"`
}

// State is a torrent's run state. It is serialized by name.
type State int

const (
	StateDownloading State = iota
	StatePaused
)

func (s State) String() string {
	if s == StatePaused {
		return "paused"
	}
	return "downloading"
}

// MarshalText writes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func infoOf(h Handle) Info {
	st := StateDownloading
	if h.Paused() {
		st = StatePaused
	}
	return Info{InfoHash: h.InfoHash(), Name: h.Name(), State: st}
}
