package torrent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mnehpets/rpchost/messaging"
)

// Handlers acts on the session for each torrent command.
type Handlers struct {
	session Session
	logger  *slog.Logger
}

// NewHandlers returns handlers over session. A nil logger discards.
func NewHandlers(session Session, logger *slog.Logger) *Handlers {
	if session == nil {
		panic("torrent: nil session")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{session: session, logger: logger}
}

// Bindings returns the command bus bindings for every torrent message.
func (h *Handlers) Bindings() []messaging.Binding {
	return []messaging.Binding{
		messaging.BindFunc(h.Remove),
		messaging.BindFunc(h.Resume),
		messaging.BindFunc(h.Pause),
	}
}

// Remove removes the torrent. An unknown info hash is not an error.
func (h *Handlers) Remove(ctx context.Context, msg RemoveTorrentMessage) error {
	t, ok := h.session.FindTorrent(msg.InfoHash)
	if !ok {
		h.logger.DebugContext(ctx, "remove unknown torrent", "infoHash", msg.InfoHash)
		return nil
	}
	if err := h.session.RemoveTorrent(t, msg.RemoveData); err != nil {
		return fmt.Errorf("torrent: remove %s: %w", msg.InfoHash, err)
	}
	h.logger.InfoContext(ctx, "torrent removed", "infoHash", msg.InfoHash, "removeData", msg.RemoveData)
	return nil
}

// Resume resumes the torrent.
func (h *Handlers) Resume(ctx context.Context, msg ResumeTorrentMessage) error {
	t, ok := h.session.FindTorrent(msg.InfoHash)
	if !ok {
		return fmt.Errorf("torrent: resume %s: %w", msg.InfoHash, ErrNotFound)
	}
	if err := h.session.Resume(t); err != nil {
		return fmt.Errorf("torrent: resume %s: %w", msg.InfoHash, err)
	}
	return nil
}

// Pause pauses the torrent.
func (h *Handlers) Pause(ctx context.Context, msg PauseTorrentMessage) error {
	t, ok := h.session.FindTorrent(msg.InfoHash)
	if !ok {
		return fmt.Errorf("torrent: pause %s: %w", msg.InfoHash, ErrNotFound)
	}
	if err := h.session.Pause(t); err != nil {
		return fmt.Errorf("torrent: pause %s: %w", msg.InfoHash, err)
	}
	return nil
}
