package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrameSize bounds a single frame; a declared length beyond this is
// treated as a corrupt or hostile stream rather than read into memory.
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by ReadFrame/TryReadFrame when the declared frame
// length exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Frame is one length-prefixed message: a type tag plus its payload. For
// byte-carrying variants (Output, AttachInput, CaptureOutput) Payload holds
// the raw bytes. For every other variant carrying fields, Payload holds a
// CBOR-encoded struct from messages.go.
type Frame struct {
	Tag     Tag
	Payload []byte
}

// WriteFrame serializes f as [u32 BE length][tag][payload] and writes it.
func WriteFrame(w io.Writer, f Frame) error {
	body := make([]byte, 1+len(f.Payload))
	body[0] = byte(f.Tag)
	copy(body[1:], f.Payload)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame, failing on short input or EOF. Use
// this for simple request/response round trips.
func ReadFrame(r io.Reader) (Frame, error) {
	f, err := readFrame(r)
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

// TryReadFrame reads one frame, tolerating a clean disconnect on a frame
// boundary: it returns (nil, nil) when the peer closed the connection
// between frames, and (nil, err) for a truncated frame or decode failure.
func TryReadFrame(r io.Reader) (*Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	f, err := readFrameBody(r, lenBuf)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func readFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame length: %w", err)
	}
	return readFrameBody(r, lenBuf)
}

func readFrameBody(r io.Reader, lenBuf [4]byte) (Frame, error) {
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	if length == 0 {
		return Frame{}, fmt.Errorf("read frame body: empty frame")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}

	return Frame{Tag: Tag(body[0]), Payload: body[1:]}, nil
}

// Marshal CBOR-encodes v for use as a Frame payload.
func Marshal(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR Frame payload into v.
func Unmarshal(payload []byte, v interface{}) error {
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("protocol: unmarshal: %w", err)
	}
	return nil
}
