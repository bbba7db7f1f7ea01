package torrent

import (
	"sort"
	"sync"
)

// MemorySession is an in-process Session. It stands in for the native
// engine when none is linked.
type MemorySession struct {
	mu       sync.RWMutex
	torrents map[string]*memoryTorrent
	// removedData records hashes removed with their data, for inspection.
	removedData map[string]bool
}

type memoryTorrent struct {
	s      *MemorySession
	hash   string
	name   string
	paused bool
}

func (t *memoryTorrent) InfoHash() string { return t.hash }
func (t *memoryTorrent) Name() string     { return t.name }

func (t *memoryTorrent) Paused() bool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.paused
}

// NewMemorySession returns an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{
		torrents:    make(map[string]*memoryTorrent),
		removedData: make(map[string]bool),
	}
}

// Add adds a torrent, replacing any with the same hash.
func (s *MemorySession) Add(infoHash, name string) error {
	h, err := normalizeHash(infoHash)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torrents[h] = &memoryTorrent{s: s, hash: h, name: name}
	return nil
}

func (s *MemorySession) FindTorrent(infoHash string) (Handle, bool) {
	h, err := normalizeHash(infoHash)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.torrents[h]
	if !ok {
		return nil, false
	}
	return t, true
}

func (s *MemorySession) lookup(h Handle) (*memoryTorrent, error) {
	t, ok := h.(*memoryTorrent)
	if !ok || t.s != s {
		return nil, ErrNotFound
	}
	if s.torrents[t.hash] != t {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *MemorySession) RemoveTorrent(h Handle, removeData bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(h)
	if err != nil {
		return err
	}
	delete(s.torrents, t.hash)
	s.removedData[t.hash] = removeData
	return nil
}

func (s *MemorySession) Resume(h Handle) error {
	return s.setPaused(h, false)
}

func (s *MemorySession) Pause(h Handle) error {
	return s.setPaused(h, true)
}

func (s *MemorySession) setPaused(h Handle, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(h)
	if err != nil {
		return err
	}
	t.paused = paused
	return nil
}

// Torrents returns every torrent ordered by info hash.
func (s *MemorySession) Torrents() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]string, 0, len(s.torrents))
	for h := range s.torrents {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	out := make([]Handle, len(hashes))
	for i, h := range hashes {
		out[i] = s.torrents[h]
	}
	return out
}

// RemovedWithData reports whether infoHash was removed and whether its data
// went with it.
func (s *MemorySession) RemovedWithData(infoHash string) (removed, withData bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	withData, removed = s.removedData[infoHash]
	return removed, withData
}

var _ Session = (*MemorySession)(nil)
