package torrent

import (
	"context"
	"errors"

	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/messaging"
)

// Publisher sends commands to their handlers.
type Publisher interface {
	Publish(ctx context.Context, msg messaging.Message) error
}

// Service exposes torrent commands over JSON-RPC. Mutations go through the
// command bus; listing reads the session directly.
type Service struct {
	bus     Publisher
	session Session
}

// NewService returns the RPC service.
func NewService(bus Publisher, session Session) *Service {
	return &Service{bus: bus, session: session}
}

func (s *Service) ServiceName() string { return "torrents" }

// Methods implements jsonrpc.Service.
func (s *Service) Methods() []jsonrpc.Method {
	return jsonrpc.Group("torrents",
		jsonrpc.Func2("remove", jsonrpc.Arg[string]("infoHash"), jsonrpc.OptionalArg("removeData", false), s.remove),
		jsonrpc.Func1("resume", jsonrpc.Arg[string]("infoHash"), s.resume),
		jsonrpc.Func1("pause", jsonrpc.Arg[string]("infoHash"), s.pause),
		jsonrpc.Func0("list", s.list),
	)
}

func (s *Service) remove(ctx context.Context, infoHash string, removeData bool) (bool, error) {
	msg, err := NewRemoveTorrentMessage(infoHash, removeData)
	if err != nil {
		return false, rpcError(err)
	}
	return true, s.bus.Publish(ctx, msg)
}

func (s *Service) resume(ctx context.Context, infoHash string) (bool, error) {
	msg, err := NewResumeTorrentMessage(infoHash)
	if err != nil {
		return false, rpcError(err)
	}
	return true, s.bus.Publish(ctx, msg)
}

func (s *Service) pause(ctx context.Context, infoHash string) (bool, error) {
	msg, err := NewPauseTorrentMessage(infoHash)
	if err != nil {
		return false, rpcError(err)
	}
	return true, s.bus.Publish(ctx, msg)
}

func (s *Service) list(context.Context) ([]Info, error) {
	handles := s.session.Torrents()
	out := make([]Info, 0, len(handles))
	for _, h := range handles {
		out = append(out, infoOf(h))
	}
	return out, nil
}

func rpcError(err error) error {
	if errors.Is(err, ErrInvalidInfoHash) {
		return jsonrpc.NewInvalidParamsError()
	}
	return err
}
