package protocol_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"example.com/inklink/internal/protocol"
)

func TestErrorKindStrings(t *testing.T) {
	cases := []struct {
		kind protocol.ErrorKind
		want string
	}{
		{protocol.KindNone, "NONE"},
		{protocol.KindTruncatedFrame, "TRUNCATED_FRAME"},
		{protocol.KindEncodingError, "ENCODING_ERROR"},
		{protocol.KindChunkOutOfBounds, "CHUNK_OUT_OF_BOUNDS"},
		{protocol.KindProtocolViolation, "PROTOCOL_VIOLATION"},
		{protocol.KindPeerReportedError, "PEER_REPORTED_ERROR"},
		{protocol.KindConnectionLost, "CONNECTION_LOST"},
		{protocol.KindTimeout, "TIMEOUT"},
		{protocol.ErrorKind(200), "UNKNOWN_ERROR_KIND_200"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	e := protocol.NewError(protocol.KindChunkOutOfBounds, "chunk past end")
	if !strings.Contains(e.Error(), "CHUNK_OUT_OF_BOUNDS") || !strings.Contains(e.Error(), "chunk past end") {
		t.Errorf("Error() = %q, want kind and message present", e.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("short read")
	e := protocol.NewErrorWithCause(protocol.KindTruncatedFrame, "bad frame", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is(e, cause) = false, want true")
	}
	if !strings.Contains(e.Error(), "short read") {
		t.Errorf("Error() = %q, want cause included", e.Error())
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	e := protocol.NewError(protocol.KindTimeout, "page transfer stalled")
	if !errors.Is(e, protocol.NewError(protocol.KindTimeout, "")) {
		t.Error("errors.Is should match two errors of the same kind")
	}
	if errors.Is(e, protocol.NewError(protocol.KindConnectionLost, "")) {
		t.Error("errors.Is should not match different kinds")
	}
}

func TestKindOf(t *testing.T) {
	if got := protocol.KindOf(nil); got != protocol.KindNone {
		t.Errorf("KindOf(nil) = %s, want NONE", got)
	}
	if got := protocol.KindOf(fmt.Errorf("plain")); got != protocol.KindNone {
		t.Errorf("KindOf(plain error) = %s, want NONE", got)
	}
	wrapped := fmt.Errorf("outer: %w", protocol.NewError(protocol.KindPeerReportedError, "x"))
	if got := protocol.KindOf(wrapped); got != protocol.KindPeerReportedError {
		t.Errorf("KindOf(wrapped) = %s, want PEER_REPORTED_ERROR", got)
	}
}
