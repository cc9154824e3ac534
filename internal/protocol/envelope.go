package protocol

// Plain wraps a tag with no payload (Ping, Pong, Ok, KillServer,
// ListSessions, KillAllSessions, Detach, SessionEnded, InputSent,
// SessionExited).
func Plain(tag Tag) Frame {
	return Frame{Tag: tag}
}

// Bytes wraps a tag whose payload is raw bytes (Output, AttachInput,
// CaptureOutput).
func Bytes(tag Tag, data []byte) Frame {
	return Frame{Tag: tag, Payload: data}
}

// Encode CBOR-encodes v and wraps it in a Frame under tag. Used for every
// struct payload in messages.go.
func Encode(tag Tag, v interface{}) (Frame, error) {
	payload, err := Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Tag: tag, Payload: payload}, nil
}

// ErrorFrame builds an Error(message) response frame.
func ErrorFrame(message string) Frame {
	f, err := Encode(TagError, Error{Message: message})
	if err != nil {
		// Error is a trivial struct; Marshal cannot fail on it.
		panic(err)
	}
	return f
}
