package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/inklink/internal/protocol"
)

// Phase represents the session's position in the list/page lifecycle.
type Phase uint8

const (
	// PhaseAwaitingConnection: no companion link; the transport is
	// advertising and will signal ConnectionEstablished.
	PhaseAwaitingConnection Phase = iota
	// PhaseLoadingList: REQUEST_LIST emitted, waiting for LIST_START.
	PhaseLoadingList
	// PhaseReceivingList: listing transfer in flight.
	PhaseReceivingList
	// PhaseBrowsing: catalog published, waiting for a selection.
	PhaseBrowsing
	// PhaseLoadingPage: REQUEST_PAGE emitted, waiting for PAGE_START.
	PhaseLoadingPage
	// PhaseReceivingPage: page transfer in flight.
	PhaseReceivingPage
	// PhaseDisplayingPage: a complete page image is available.
	PhaseDisplayingPage
	// PhaseError: a transfer was aborted; terminal until Reset.
	PhaseError
)

// String returns a string representation of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingConnection:
		return "AwaitingConnection"
	case PhaseLoadingList:
		return "LoadingList"
	case PhaseReceivingList:
		return "ReceivingList"
	case PhaseBrowsing:
		return "Browsing"
	case PhaseLoadingPage:
		return "LoadingPage"
	case PhaseReceivingPage:
		return "ReceivingPage"
	case PhaseDisplayingPage:
		return "DisplayingPage"
	case PhaseError:
		return "Error"
	default:
		return fmt.Sprintf("UnknownPhase(%d)", uint8(p))
	}
}

// noSelection is the selectedIndex value meaning no entry is selected.
const noSelection = -1

// Session is the transfer-protocol state machine. It owns at most one
// reassembler at a time, decides what outbound frame to send next, and
// publishes the catalog, the finished page image and the last error to
// the rendering collaborator.
//
// All mutable state is guarded by a single mutex: inbound frames arrive
// from the transport callback while the display path polls from its own
// cycle, and the two contexts have no ordering relationship. No method
// blocks; emitting an outbound frame only appends to a queue drained by
// TakeOutboundFrame.
type Session struct {
	mu sync.Mutex

	log      zerolog.Logger
	capacity int
	timeout  time.Duration
	now      func() time.Time

	phase      Phase
	catalog    Catalog
	selected   int
	pageNumber uint16

	list *listReassembler
	page *pageReassembler

	readyPage  []byte
	lastErr    *protocol.Error
	outbound   [][]byte
	deadline   time.Time
	transferID string
	closed     bool
}

// NewSession creates a session in PhaseAwaitingConnection.
//
// pageCapacity is the display-derived page buffer size in bytes and
// timeout the silent-peer bound applied by Tick while a transfer is in
// flight.
func NewSession(pageCapacity int, timeout time.Duration, log zerolog.Logger) *Session {
	return &Session{
		log:      log,
		capacity: pageCapacity,
		timeout:  timeout,
		now:      time.Now,
		phase:    PhaseAwaitingConnection,
		selected: noSelection,
	}
}

// SetClock replaces the session's time source. Test hook; not safe to
// call once frames are flowing.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ConnectionEstablished is the transport collaborator's signal that the
// companion app connected. It starts a listing request.
func (s *Session) ConnectionEstablished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.phase != PhaseAwaitingConnection {
		s.log.Debug().Stringer("phase", s.phase).Msg("connection-established signal ignored")
		return
	}
	s.log.Info().Msg("companion connected, requesting listing")
	s.requestListLocked()
}

// ConnectionLost is the transport collaborator's signal that the link
// dropped. Disconnection is expected and recoverable, so the session
// returns to PhaseAwaitingConnection rather than PhaseError; the
// transport retries advertising and reconnection on its own.
func (s *Session) ConnectionLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.log.Info().Stringer("phase", s.phase).Msg("companion link lost")
	s.resetToAwaitingLocked()
}

// SelectEntry moves the browsing selection to index. Out-of-range
// indices are ignored. Changing the selection resets the page number.
func (s *Session) SelectEntry(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseBrowsing {
		s.log.Debug().Stringer("phase", s.phase).Int("index", index).Msg("selection ignored")
		return
	}
	if index < 0 || index >= len(s.catalog) {
		s.log.Debug().Int("index", index).Int("catalog_len", len(s.catalog)).Msg("selection out of range")
		return
	}
	if index != s.selected {
		s.selected = index
		s.pageNumber = 0
	}
}

// ConfirmSelection requests page 0 of the selected entry.
func (s *Session) ConfirmSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseBrowsing {
		s.log.Debug().Stringer("phase", s.phase).Msg("confirm-selection ignored")
		return
	}
	if s.selected == noSelection {
		s.log.Debug().Msg("confirm-selection with empty catalog ignored")
		return
	}
	s.pageNumber = 0
	s.requestPageLocked()
}

// RequestNextPage requests the page after the one on display.
func (s *Session) RequestNextPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDisplayingPage {
		s.log.Debug().Stringer("phase", s.phase).Msg("next-page ignored")
		return
	}
	s.pageNumber++
	s.requestPageLocked()
}

// RequestPrevPage requests the page before the one on display. At page 0
// it is a no-op; no request is sent.
func (s *Session) RequestPrevPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDisplayingPage {
		s.log.Debug().Stringer("phase", s.phase).Msg("prev-page ignored")
		return
	}
	if s.pageNumber == 0 {
		return
	}
	s.pageNumber--
	s.requestPageLocked()
}

// Cancel abandons an in-flight listing or page transfer: the live
// reassembler is discarded, a best-effort CANCEL_TRANSFER frame is
// queued, and the session returns to PhaseBrowsing, or to
// PhaseAwaitingConnection if no catalog has been received yet. Late
// fragments for the cancelled transfer are then ignored by the
// phase-mismatch rule.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseLoadingList, PhaseReceivingList, PhaseLoadingPage, PhaseReceivingPage:
	default:
		s.log.Debug().Stringer("phase", s.phase).Msg("cancel ignored")
		return
	}
	s.log.Info().Stringer("phase", s.phase).Str("transfer_id", s.transferID).Msg("transfer cancelled")
	s.list = nil
	s.page = nil
	s.deadline = time.Time{}
	s.outbound = append(s.outbound, protocol.EncodeCancelTransfer())
	if len(s.catalog) > 0 {
		s.phase = PhaseBrowsing
	} else {
		s.phase = PhaseAwaitingConnection
	}
}

// Reset returns the session from PhaseError to PhaseAwaitingConnection,
// clearing the recorded error. In any other phase it is a no-op.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseError {
		return
	}
	s.lastErr = nil
	s.resetToAwaitingLocked()
}

// Close queues a graceful DISCONNECT frame and stops the session for
// good; all later signals and frames are ignored. The outbound queue
// stays drainable so the transport can still send the disconnect.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.list = nil
	s.page = nil
	s.readyPage = nil
	s.catalog = nil
	s.deadline = time.Time{}
	s.phase = PhaseAwaitingConnection
	s.outbound = append(s.outbound, protocol.EncodeDisconnect())
	s.log.Info().Msg("session closed")
}

// Tick applies the timeout policy and is called from the display poll
// cycle. A transfer that has not advanced within the configured timeout
// is treated as a lost connection, not retried forever; the alternative
// is a UI hung on a silently dead peer.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.deadline.IsZero() {
		return
	}
	switch s.phase {
	case PhaseLoadingList, PhaseReceivingList, PhaseLoadingPage, PhaseReceivingPage:
	default:
		return
	}
	if s.now().Before(s.deadline) {
		return
	}
	s.log.Warn().
		Stringer("phase", s.phase).
		Str("transfer_id", s.transferID).
		Dur("timeout", s.timeout).
		Msg("transfer timed out, treating as lost connection")
	s.resetToAwaitingLocked()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Catalog returns the published catalog. The returned slice is shared
// with the session and must be treated as read-only; the session is the
// sole writer and replaces it wholesale on each new listing.
func (s *Session) Catalog() Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SelectedIndex returns the browsing selection, or -1 when the catalog
// is empty.
func (s *Session) SelectedIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// PageNumber returns the page number of the current or most recent page
// request.
func (s *Session) PageNumber() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageNumber
}

// TakePage hands the finished page image to the caller and discards the
// session's reference. The second result is false when no completed page
// is waiting. The image length is the transfer's high-water mark, which
// may be smaller than the page buffer capacity.
func (s *Session) TakePage() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readyPage == nil {
		return nil, false
	}
	p := s.readyPage
	s.readyPage = nil
	return p, true
}

// LastError returns the error that drove the session to PhaseError, or
// nil.
func (s *Session) LastError() *protocol.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// TakeOutboundFrame drains the next frame for the transport collaborator
// to send. It never blocks; false means the queue is empty.
func (s *Session) TakeOutboundFrame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outbound) == 0 {
		return nil, false
	}
	f := s.outbound[0]
	s.outbound = s.outbound[1:]
	return f, true
}

// HandleFrame routes one decoded inbound frame. Frames that are not
// valid for the current phase are ignored: stray retransmissions and
// fragments of superseded transfers are expected on a lossy fragmented
// channel and must not kill the session.
func (s *Session) HandleFrame(f protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch fr := f.(type) {
	case protocol.ErrorFrame:
		s.failLocked(protocol.NewError(protocol.KindPeerReportedError, "companion reported an error"))
	case protocol.OkFrame:
		s.log.Debug().Msg("OK frame")
	case protocol.ListStartFrame:
		s.handleListStartLocked()
	case protocol.ListEntryFrame:
		s.handleListEntryLocked(fr)
	case protocol.ListEndFrame:
		s.handleListEndLocked()
	case protocol.PageStartFrame:
		s.handlePageStartLocked()
	case protocol.PageChunkFrame:
		s.handlePageChunkLocked(fr)
	case protocol.PageEndFrame:
		s.handlePageEndLocked()
	case protocol.UnknownFrame:
		s.log.Debug().Uint8("tag", fr.Tag).Msg("unknown frame tag ignored")
	default:
		s.log.Debug().Stringer("status", f.Status()).Msg("unhandled frame ignored")
	}
}

// FailInbound records a decode failure from the dispatcher. The in-flight
// transfer, if any, is aborted; no reassembler state was touched by the
// malformed buffer.
func (s *Session) FailInbound(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e, ok := err.(*protocol.Error)
	if !ok {
		e = protocol.NewErrorWithCause(protocol.KindTruncatedFrame, "inbound frame rejected", err)
	}
	s.failLocked(e)
}

// --- inbound frame handlers (mutex held) ---

func (s *Session) handleListStartLocked() {
	switch s.phase {
	case PhaseLoadingList:
		s.list = newListReassembler()
		s.phase = PhaseReceivingList
		s.touchDeadlineLocked()
		s.log.Debug().Str("transfer_id", s.transferID).Msg("listing transfer started")
	case PhaseReceivingList:
		// Supersession: restart with an empty sequence, dropping the
		// partial listing.
		s.log.Debug().Str("transfer_id", s.transferID).Int("dropped", s.list.len()).
			Msg("listing transfer restarted")
		s.list = newListReassembler()
		s.touchDeadlineLocked()
	default:
		s.violationLocked(protocol.StatusListStart)
	}
}

func (s *Session) handleListEntryLocked(fr protocol.ListEntryFrame) {
	if s.phase != PhaseReceivingList {
		s.violationLocked(protocol.StatusListEntry)
		return
	}
	s.list.add(CatalogEntry{ID: fr.ID, Title: fr.Title})
	s.touchDeadlineLocked()
}

func (s *Session) handleListEndLocked() {
	if s.phase != PhaseReceivingList {
		s.violationLocked(protocol.StatusListEnd)
		return
	}
	s.catalog = s.list.finish()
	s.list = nil
	if len(s.catalog) > 0 {
		s.selected = 0
	} else {
		s.selected = noSelection
	}
	s.pageNumber = 0
	s.phase = PhaseBrowsing
	s.deadline = time.Time{}
	s.outbound = append(s.outbound, protocol.EncodeAcknowledge())
	s.log.Info().Str("transfer_id", s.transferID).Int("entries", len(s.catalog)).
		Msg("listing transfer complete")
}

func (s *Session) handlePageStartLocked() {
	switch s.phase {
	case PhaseLoadingPage:
		s.page = newPageReassembler(s.capacity)
		s.phase = PhaseReceivingPage
		s.touchDeadlineLocked()
		s.log.Debug().Str("transfer_id", s.transferID).Msg("page transfer started")
	case PhaseReceivingPage:
		// Supersession: drop the in-progress buffer and start over.
		s.log.Debug().Str("transfer_id", s.transferID).Int("dropped", s.page.highWater).
			Msg("page transfer restarted")
		s.page = newPageReassembler(s.capacity)
		s.touchDeadlineLocked()
	default:
		s.violationLocked(protocol.StatusPageStart)
	}
}

func (s *Session) handlePageChunkLocked(fr protocol.PageChunkFrame) {
	if s.phase != PhaseReceivingPage {
		s.violationLocked(protocol.StatusPageChunk)
		return
	}
	if err := s.page.write(fr.Offset, fr.Payload); err != nil {
		s.failLocked(err.(*protocol.Error))
		return
	}
	s.touchDeadlineLocked()
}

func (s *Session) handlePageEndLocked() {
	if s.phase != PhaseReceivingPage {
		s.violationLocked(protocol.StatusPageEnd)
		return
	}
	s.readyPage = s.page.finish()
	s.page = nil
	s.phase = PhaseDisplayingPage
	s.deadline = time.Time{}
	s.outbound = append(s.outbound, protocol.EncodeAcknowledge())
	s.log.Info().Str("transfer_id", s.transferID).Int("bytes", len(s.readyPage)).
		Uint16("page", s.pageNumber).Msg("page transfer complete")
}

// --- internal transitions (mutex held) ---

// requestListLocked enters PhaseLoadingList and queues REQUEST_LIST.
func (s *Session) requestListLocked() {
	s.transferID = uuid.NewString()
	s.list = nil
	s.page = nil
	s.readyPage = nil
	s.outbound = append(s.outbound, protocol.EncodeRequestList())
	s.phase = PhaseLoadingList
	s.touchDeadlineLocked()
}

// requestPageLocked enters PhaseLoadingPage and queues REQUEST_PAGE for
// the selected entry and current page number.
func (s *Session) requestPageLocked() {
	entry := s.catalog[s.selected]
	frame, err := protocol.EncodeRequestPage(entry.ID, s.pageNumber)
	if err != nil {
		// An id that fit a LIST_ENTRY always fits REQUEST_PAGE, so this
		// only trips on a corrupted catalog.
		s.failLocked(err.(*protocol.Error))
		return
	}
	s.transferID = uuid.NewString()
	s.page = nil
	s.readyPage = nil
	s.outbound = append(s.outbound, frame)
	s.phase = PhaseLoadingPage
	s.touchDeadlineLocked()
	s.log.Debug().Str("transfer_id", s.transferID).Str("id", entry.ID).
		Uint16("page", s.pageNumber).Msg("page requested")
}

// failLocked aborts the in-flight transfer and moves to PhaseError. The
// live reassembler is dropped so no partially written buffer is ever
// observable through the query API.
func (s *Session) failLocked(e *protocol.Error) {
	s.log.Error().Err(e).Stringer("phase", s.phase).Str("transfer_id", s.transferID).
		Msg("transfer aborted")
	s.list = nil
	s.page = nil
	s.readyPage = nil
	s.deadline = time.Time{}
	s.lastErr = e
	s.phase = PhaseError
}

// resetToAwaitingLocked discards all transfer state and returns to
// PhaseAwaitingConnection. Used for disconnects and timeouts, which are
// recoverable and not surfaced as user-facing errors.
func (s *Session) resetToAwaitingLocked() {
	s.list = nil
	s.page = nil
	s.readyPage = nil
	s.deadline = time.Time{}
	s.phase = PhaseAwaitingConnection
}

// violationLocked logs a frame that is well-formed but invalid for the
// current phase. Soft diagnostic only; the frame is dropped.
func (s *Session) violationLocked(tag protocol.Status) {
	s.log.Debug().
		Stringer("status", tag).
		Stringer("phase", s.phase).
		Msg("frame not valid for phase, ignored")
}

// touchDeadlineLocked pushes the transfer deadline out by the configured
// timeout. Called whenever an inbound frame advances a transfer.
func (s *Session) touchDeadlineLocked() {
	s.deadline = s.now().Add(s.timeout)
}
