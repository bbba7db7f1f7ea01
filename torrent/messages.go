package torrent

import "strings"

// RemoveTorrentMessage asks for a torrent to be removed, optionally with its
// downloaded data.
type RemoveTorrentMessage struct {
	InfoHash   string
	RemoveData bool
}

func (RemoveTorrentMessage) MessageName() string { return "torrent.remove" }

// ResumeTorrentMessage asks for a paused torrent to be resumed.
type ResumeTorrentMessage struct {
	InfoHash string
}

func (ResumeTorrentMessage) MessageName() string { return "torrent.resume" }

// PauseTorrentMessage asks for a torrent to be paused.
type PauseTorrentMessage struct {
	InfoHash string
}

func (PauseTorrentMessage) MessageName() string { return "torrent.pause" }

func normalizeHash(infoHash string) (string, error) {
	infoHash = strings.ToLower(strings.TrimSpace(infoHash))
	if infoHash == "" {
		return "", ErrInvalidInfoHash
	}
	return infoHash, nil
}

func NewRemoveTorrentMessage(infoHash string, removeData bool) (RemoveTorrentMessage, error) {
	h, err := normalizeHash(infoHash)
	if err != nil {
		return RemoveTorrentMessage{}, err
	}
	return RemoveTorrentMessage{InfoHash: h, RemoveData: removeData}, nil
}

func NewResumeTorrentMessage(infoHash string) (ResumeTorrentMessage, error) {
	h, err := normalizeHash(infoHash)
	if err != nil {
		return ResumeTorrentMessage{}, err
	}
	return ResumeTorrentMessage{InfoHash: h}, nil
}

func NewPauseTorrentMessage(infoHash string) (PauseTorrentMessage, error) {
	h, err := normalizeHash(infoHash)
	if err != nil {
		return PauseTorrentMessage{}, err
	}
	return PauseTorrentMessage{InfoHash: h}, nil
}
