package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request is the interface for all decoded outbound command frames. The
// device only encodes these; decoding exists for the companion side of a
// loopback link and for round-trip verification.
type Request interface {
	Command() Command
}

// RequestListFrame asks for the catalog listing.
type RequestListFrame struct{}

func (RequestListFrame) Command() Command { return CmdRequestList }

// RequestPageFrame asks for one page of one catalog entry.
type RequestPageFrame struct {
	CatalogID  string
	PageNumber uint16
}

func (RequestPageFrame) Command() Command { return CmdRequestPage }

// AcknowledgeFrame acknowledges a completed transfer.
type AcknowledgeFrame struct{}

func (AcknowledgeFrame) Command() Command { return CmdAcknowledge }

// CancelTransferFrame abandons the in-flight transfer.
type CancelTransferFrame struct{}

func (CancelTransferFrame) Command() Command { return CmdCancelTransfer }

// DisconnectFrame announces a graceful disconnect.
type DisconnectFrame struct{}

func (DisconnectFrame) Command() Command { return CmdDisconnect }

// DecodeCommand decodes one outbound command frame from buf, with the
// same bounds discipline as DecodeFrame.
func DecodeCommand(buf []byte) (Request, error) {
	if len(buf) < 1 {
		return nil, NewError(KindTruncatedFrame, "empty command frame")
	}
	switch Command(buf[0]) {
	case CmdRequestList:
		return RequestListFrame{}, nil
	case CmdAcknowledge:
		return AcknowledgeFrame{}, nil
	case CmdCancelTransfer:
		return CancelTransferFrame{}, nil
	case CmdDisconnect:
		return DisconnectFrame{}, nil
	case CmdRequestPage:
		// [tag][idLen:1][id:idLen][pageNumber:2 big-endian]
		if len(buf) < 2 {
			return nil, NewError(KindTruncatedFrame,
				fmt.Sprintf("REQUEST_PAGE frame of %d bytes is missing its id length", len(buf)))
		}
		idLen := int(buf[1])
		if len(buf) < 2+idLen+2 {
			return nil, NewError(KindTruncatedFrame,
				fmt.Sprintf("REQUEST_PAGE frame of %d bytes declares id of %d bytes", len(buf), idLen))
		}
		id := string(buf[2 : 2+idLen])
		page := binary.BigEndian.Uint16(buf[2+idLen : 2+idLen+2])
		return RequestPageFrame{CatalogID: id, PageNumber: page}, nil
	default:
		return nil, NewError(KindProtocolViolation,
			fmt.Sprintf("unknown command tag 0x%02X", buf[0]))
	}
}
