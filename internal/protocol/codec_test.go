package protocol

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Bytes(TagOutput, []byte("hello"))

	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.Tag != TagOutput {
		t.Fatalf("tag = %d, want %d", out.Tag, TagOutput)
	}
	if string(out.Payload) != "hello" {
		t.Fatalf("payload = %q, want %q", out.Payload, "hello")
	}
}

func TestTryReadFrameCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	f, err := TryReadFrame(&buf)
	if err != nil {
		t.Fatalf("TryReadFrame on empty reader: %v", err)
	}
	if f != nil {
		t.Fatalf("expected nil frame on clean EOF, got %+v", f)
	}
}

func TestTryReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Plain(TagPing)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-1])
	if _, err := TryReadFrame(truncated); err == nil {
		t.Fatal("expected error on truncated frame, got nil")
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF})
	if _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestMarshalUnmarshalStruct(t *testing.T) {
	want := CreateSession{Command: []string{"bash", "-l"}, Env: map[string]string{"FOO": "bar"}}

	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got CreateSession
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(got.Command) != 2 || got.Command[0] != "bash" || got.Command[1] != "-l" {
		t.Fatalf("Command = %v, want [bash -l]", got.Command)
	}
	if got.Env["FOO"] != "bar" {
		t.Fatalf("Env[FOO] = %q, want bar", got.Env["FOO"])
	}
}

func TestEncodeFrameDecodesToSameTag(t *testing.T) {
	f, err := Encode(TagSessionCreated, SessionCreated{Name: "session1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.Tag != TagSessionCreated {
		t.Fatalf("tag = %d, want %d", out.Tag, TagSessionCreated)
	}

	var sc SessionCreated
	if err := Unmarshal(out.Payload, &sc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if sc.Name != "session1" {
		t.Fatalf("Name = %q, want session1", sc.Name)
	}
}
