// Package plugin carries JSON-RPC payloads between the host and an isolated
// plugin host process.
//
// Each message is a CBOR map preceded by its length as a 4-byte big-endian
// integer. A call is one request frame {op:"rpc", payload} answered by one
// reply frame carrying either payload or error. A connection may carry
// several calls in sequence.
package plugin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// OpRPC is the only operation: relay a JSON-RPC payload.
const OpRPC = "rpc"

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("plugin: frame too large")

type request struct {
	Op      string `cbor:"op"`
	Payload string `cbor:"payload"`
}

type reply struct {
	Payload string `cbor:"payload,omitempty"`
	Error   string `cbor:"error,omitempty"`
}

// RemoteError is a failure reported by the plugin host.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "plugin: remote: " + e.Message
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: 16, MaxMapPairs: 16}.DecMode()
	if err != nil {
		panic(err)
	}
}

func writeFrame(w io.Writer, v any) error {
	b, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("plugin: encode frame: %w", err)
	}
	if len(b) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[4:], b)
	_, err = w.Write(buf)
	return err
}

// readFrame returns io.EOF only when the stream ends cleanly between frames.
func readFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return ErrFrameTooLarge
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if err := decMode.Unmarshal(b, v); err != nil {
		return fmt.Errorf("plugin: decode frame: %w", err)
	}
	return nil
}
