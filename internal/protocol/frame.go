package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is the tag byte of an outbound (device -> companion) frame.
type Command uint8

const (
	// CmdRequestList (0x01): ask the companion for its catalog listing.
	CmdRequestList Command = 0x01
	// CmdRequestPage (0x02): ask for one page of one catalog entry.
	CmdRequestPage Command = 0x02
	// CmdAcknowledge (0x03): acknowledge a completed transfer.
	CmdAcknowledge Command = 0x03
	// CmdCancelTransfer (0x04): abandon the in-flight transfer.
	CmdCancelTransfer Command = 0x04
	// CmdDisconnect (0x05): graceful disconnect.
	CmdDisconnect Command = 0x05
)

// String returns the string representation of the Command.
func (c Command) String() string {
	switch c {
	case CmdRequestList:
		return "REQUEST_LIST"
	case CmdRequestPage:
		return "REQUEST_PAGE"
	case CmdAcknowledge:
		return "ACKNOWLEDGE"
	case CmdCancelTransfer:
		return "CANCEL_TRANSFER"
	case CmdDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("UNKNOWN_COMMAND_0x%02X", uint8(c))
	}
}

// Status is the tag byte of an inbound (companion -> device) frame.
type Status uint8

const (
	// StatusOk (0x00): generic success.
	StatusOk Status = 0x00
	// StatusError (0x01): the companion reports a failure.
	StatusError Status = 0x01
	// StatusListStart (0x10): start of a catalog listing transfer.
	StatusListStart Status = 0x10
	// StatusListEntry (0x11): one catalog entry.
	StatusListEntry Status = 0x11
	// StatusListEnd (0x12): end of a catalog listing transfer.
	StatusListEnd Status = 0x12
	// StatusPageStart (0x20): start of a page transfer.
	StatusPageStart Status = 0x20
	// StatusPageChunk (0x21): one offset-addressed piece of page data.
	StatusPageChunk Status = 0x21
	// StatusPageEnd (0x22): end of a page transfer.
	StatusPageEnd Status = 0x22
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusListStart:
		return "LIST_START"
	case StatusListEntry:
		return "LIST_ENTRY"
	case StatusListEnd:
		return "LIST_END"
	case StatusPageStart:
		return "PAGE_START"
	case StatusPageChunk:
		return "PAGE_CHUNK"
	case StatusPageEnd:
		return "PAGE_END"
	default:
		return fmt.Sprintf("UNKNOWN_STATUS_0x%02X", uint8(s))
	}
}

// MaxIDLen is the largest catalog id or title the wire format can carry;
// both use a single length-prefix byte.
const MaxIDLen = 255

// pageChunkHeaderLen is tag + 4-byte big-endian offset.
const pageChunkHeaderLen = 5

// Frame is the interface for all decoded inbound frames.
type Frame interface {
	Status() Status
}

// OkFrame is a bare OK status.
type OkFrame struct{}

func (OkFrame) Status() Status { return StatusOk }

// ErrorFrame is an explicit failure report from the companion.
type ErrorFrame struct{}

func (ErrorFrame) Status() Status { return StatusError }

// ListStartFrame opens a catalog listing transfer.
type ListStartFrame struct{}

func (ListStartFrame) Status() Status { return StatusListStart }

// ListEntryFrame carries one catalog entry.
// Wire layout: [tag][idLen:1][id:idLen][titleLen:1][title:titleLen].
type ListEntryFrame struct {
	ID    string
	Title string
}

func (ListEntryFrame) Status() Status { return StatusListEntry }

// ListEndFrame closes a catalog listing transfer.
type ListEndFrame struct{}

func (ListEndFrame) Status() Status { return StatusListEnd }

// PageStartFrame opens a page transfer.
type PageStartFrame struct{}

func (PageStartFrame) Status() Status { return StatusPageStart }

// PageChunkFrame carries one offset-addressed piece of page data.
// Wire layout: [tag][offset:4 big-endian][payload:rest]. Payload is copied
// out of the transport's buffer during decode; callers may retain it.
type PageChunkFrame struct {
	Offset  uint32
	Payload []byte
}

func (PageChunkFrame) Status() Status { return StatusPageChunk }

// PageEndFrame closes a page transfer.
type PageEndFrame struct{}

func (PageEndFrame) Status() Status { return StatusPageEnd }

// UnknownFrame is any frame whose tag the codec does not recognize.
// Decoding it is not an error; the session ignores it.
type UnknownFrame struct {
	Tag uint8
}

func (f UnknownFrame) Status() Status { return Status(f.Tag) }

// EncodeRequestList encodes a REQUEST_LIST command frame.
func EncodeRequestList() []byte {
	return []byte{byte(CmdRequestList)}
}

// EncodeRequestPage encodes a REQUEST_PAGE command frame for the given
// catalog id and page number. It fails with KindEncodingError if the id
// does not fit the 1-byte length prefix.
func EncodeRequestPage(catalogID string, pageNumber uint16) ([]byte, error) {
	if len(catalogID) > MaxIDLen {
		return nil, NewError(KindEncodingError,
			fmt.Sprintf("catalog id length %d exceeds %d", len(catalogID), MaxIDLen))
	}
	buf := make([]byte, 0, 2+len(catalogID)+2)
	buf = append(buf, byte(CmdRequestPage), byte(len(catalogID)))
	buf = append(buf, catalogID...)
	buf = binary.BigEndian.AppendUint16(buf, pageNumber)
	return buf, nil
}

// EncodeAcknowledge encodes an ACKNOWLEDGE command frame.
func EncodeAcknowledge() []byte {
	return []byte{byte(CmdAcknowledge)}
}

// EncodeCancelTransfer encodes a CANCEL_TRANSFER command frame.
func EncodeCancelTransfer() []byte {
	return []byte{byte(CmdCancelTransfer)}
}

// EncodeDisconnect encodes a DISCONNECT command frame.
func EncodeDisconnect() []byte {
	return []byte{byte(CmdDisconnect)}
}

// DecodeFrame decodes one inbound frame from buf. Every length is checked
// against len(buf) before any byte is read; no input can make the decoder
// read past the end of buf. Tags the codec does not know decode to
// UnknownFrame, not an error. Variable-length payloads are copied, so buf
// may be reused by the transport after DecodeFrame returns.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < 1 {
		return nil, NewError(KindTruncatedFrame, "empty frame")
	}
	tag := Status(buf[0])
	switch tag {
	case StatusOk:
		return OkFrame{}, nil
	case StatusError:
		return ErrorFrame{}, nil
	case StatusListStart:
		return ListStartFrame{}, nil
	case StatusListEnd:
		return ListEndFrame{}, nil
	case StatusPageStart:
		return PageStartFrame{}, nil
	case StatusPageEnd:
		return PageEndFrame{}, nil
	case StatusListEntry:
		return decodeListEntry(buf)
	case StatusPageChunk:
		return decodePageChunk(buf)
	default:
		return UnknownFrame{Tag: uint8(tag)}, nil
	}
}

func decodeListEntry(buf []byte) (Frame, error) {
	// [tag][idLen][id...][titleLen][title...]
	if len(buf) < 2 {
		return nil, NewError(KindTruncatedFrame,
			fmt.Sprintf("LIST_ENTRY frame of %d bytes is missing its id length", len(buf)))
	}
	idLen := int(buf[1])
	if len(buf) < 2+idLen+1 {
		return nil, NewError(KindTruncatedFrame,
			fmt.Sprintf("LIST_ENTRY frame of %d bytes declares id of %d bytes", len(buf), idLen))
	}
	titleLen := int(buf[2+idLen])
	if len(buf) < 2+idLen+1+titleLen {
		return nil, NewError(KindTruncatedFrame,
			fmt.Sprintf("LIST_ENTRY frame of %d bytes declares title of %d bytes", len(buf), titleLen))
	}
	id := string(buf[2 : 2+idLen])
	title := string(buf[2+idLen+1 : 2+idLen+1+titleLen])
	return ListEntryFrame{ID: id, Title: title}, nil
}

func decodePageChunk(buf []byte) (Frame, error) {
	// [tag][offset:4][payload...], payload must be non-empty.
	if len(buf) <= pageChunkHeaderLen {
		return nil, NewError(KindTruncatedFrame,
			fmt.Sprintf("PAGE_CHUNK frame of %d bytes has no payload", len(buf)))
	}
	offset := binary.BigEndian.Uint32(buf[1:pageChunkHeaderLen])
	payload := make([]byte, len(buf)-pageChunkHeaderLen)
	copy(payload, buf[pageChunkHeaderLen:])
	return PageChunkFrame{Offset: offset, Payload: payload}, nil
}
