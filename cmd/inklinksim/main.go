// Command inklinksim runs the transfer engine against a scripted in-memory
// companion app. It exists to exercise the full request/reassembly
// lifecycle without a wireless link: the fake companion answers
// REQUEST_LIST with a small catalog and REQUEST_PAGE with a chunked page
// image, and the loop plays both sides until a page is displayed.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"example.com/inklink/internal/config"
	"example.com/inklink/internal/logger"
	"example.com/inklink/internal/protocol"
	"example.com/inklink/internal/transfer"
)

var (
	configFilePath string
	chunkSize      int
)

// companion is the scripted peer. It consumes outbound command frames and
// returns the inbound frames a real companion app would send back.
type companion struct {
	catalog  []transfer.CatalogEntry
	pageData []byte
}

func (c *companion) respond(cmd []byte) ([][]byte, error) {
	req, err := protocol.DecodeCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("companion could not decode command: %w", err)
	}
	switch req.(type) {
	case protocol.RequestListFrame:
		frames := [][]byte{{byte(protocol.StatusListStart)}}
		for _, e := range c.catalog {
			entry := []byte{byte(protocol.StatusListEntry), byte(len(e.ID))}
			entry = append(entry, e.ID...)
			entry = append(entry, byte(len(e.Title)))
			entry = append(entry, e.Title...)
			frames = append(frames, entry)
		}
		return append(frames, []byte{byte(protocol.StatusListEnd)}), nil
	case protocol.RequestPageFrame:
		frames := [][]byte{{byte(protocol.StatusPageStart)}}
		for off := 0; off < len(c.pageData); off += chunkSize {
			end := min(off+chunkSize, len(c.pageData))
			chunk := make([]byte, 5, 5+end-off)
			chunk[0] = byte(protocol.StatusPageChunk)
			binary.BigEndian.PutUint32(chunk[1:5], uint32(off))
			chunk = append(chunk, c.pageData[off:end]...)
			frames = append(frames, chunk)
		}
		return append(frames, []byte{byte(protocol.StatusPageEnd)}), nil
	case protocol.AcknowledgeFrame, protocol.CancelTransferFrame, protocol.DisconnectFrame:
		return nil, nil
	default:
		return nil, fmt.Errorf("companion got unexpected command %s", req.Command())
	}
}

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the TOML configuration file (optional)")
	flag.IntVar(&chunkSize, "chunk", 480, "Page chunk payload size in bytes")
	flag.Parse()

	cfg := config.Default()
	if configFilePath != "" {
		var err error
		cfg, err = config.Load(configFilePath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	cfg.Logging.Console = true
	if cfg.Logging.LogLevel == config.LogLevelInfo {
		cfg.Logging.LogLevel = config.LogLevelDebug
	}

	rootLog := logger.New(cfg.Logging, os.Stderr)
	timeout, err := cfg.ParsedTransferTimeout()
	if err != nil {
		log.Fatalf("Bad transfer timeout: %v", err)
	}

	session := transfer.NewSession(cfg.PageCapacity(), timeout, logger.Component(rootLog, "session"))
	dispatcher := transfer.NewDispatcher(session, logger.Component(rootLog, "dispatcher"))

	peer := &companion{
		catalog: []transfer.CatalogEntry{
			{ID: "series-1", Title: "One Piece of Cake"},
			{ID: "series-2", Title: "Steel Alchemist"},
			{ID: "series-3", Title: "Slice of Life"},
		},
		pageData: makePageImage(cfg.PageCapacity() / 2),
	}

	session.ConnectionEstablished()

	// Pump: drain device commands, feed companion responses back through
	// the dispatcher, until the session settles.
	pump := func() {
		for {
			out, ok := session.TakeOutboundFrame()
			if !ok {
				return
			}
			responses, err := peer.respond(out)
			if err != nil {
				log.Fatalf("Simulation failed: %v", err)
			}
			for _, in := range responses {
				dispatcher.OnInboundFrame(in)
			}
		}
	}

	pump()
	if session.Phase() != transfer.PhaseBrowsing {
		log.Fatalf("Expected Browsing after listing, got %s", session.Phase())
	}
	rootLog.Info().Int("entries", len(session.Catalog())).Msg("catalog received")
	for i, e := range session.Catalog() {
		fmt.Printf("  [%d] %s (%s)\n", i, e.Title, e.ID)
	}

	session.SelectEntry(1)
	session.ConfirmSelection()
	pump()
	session.RequestNextPage()
	pump()

	if session.Phase() != transfer.PhaseDisplayingPage {
		log.Fatalf("Expected DisplayingPage, got %s", session.Phase())
	}
	page, ok := session.TakePage()
	if !ok {
		log.Fatal("No page image available")
	}
	rootLog.Info().Int("bytes", len(page)).Uint16("page", session.PageNumber()).
		Msg("page image reassembled")

	session.Close()
	if out, ok := session.TakeOutboundFrame(); ok {
		rootLog.Info().Str("frame", protocol.Command(out[0]).String()).Msg("final outbound frame")
	}
}

// makePageImage builds a recognizable test pattern smaller than the full
// page capacity, since transfers need not fill the buffer.
func makePageImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i % 251)
	}
	return img
}
