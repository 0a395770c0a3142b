package client

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"queryfabric/Common/console"
	"queryfabric/Common/wire"
)

const (
	startTimeout   = 5 * time.Second
	getNextTimeout = 190 * time.Second
	pollTimeout    = 3 * time.Second
	pollBackoff    = 200 * time.Millisecond
	pollDeadline   = 30 * time.Second
	closeTimeout   = 3 * time.Second
	redrawInterval = 120 * time.Millisecond
)

const eraseLine = "\r\033[2K"

var spinnerFrames = []string{"|", "/", "-", "\\"}

// progressLine keeps a rewritable chunk counter on the last stderr line
// while session messages scroll past above it. Everything goes through one
// mutex; the redraw ticker and the drain loop both write here.
type progressLine struct {
	mu     sync.Mutex
	out    *bufio.Writer
	width  int
	stage  string
	chunks int
	bytes  int64
	frame  int
	shown  bool
	stopCh chan struct{}
}

func newProgressLine() *progressLine {
	p := &progressLine{out: bufio.NewWriter(os.Stderr)}
	if fd := int(os.Stderr.Fd()); term.IsTerminal(fd) {
		if width, _, err := term.GetSize(fd); err == nil {
			p.width = width
		}
	}
	return p
}

// Start begins the periodic redraw. Stop erases the counter and leaves the
// scrolled messages in place.
func (p *progressLine) Start() {
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(redrawInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.mu.Lock()
				p.frame++
				p.redrawLocked()
				_ = p.out.Flush()
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressLine) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	if p.shown {
		_, _ = p.out.WriteString(eraseLine)
		p.shown = false
	}
	_ = p.out.Flush()
}

func (p *progressLine) SetStage(stage string) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
}

// Record counts one delivered chunk of n payload bytes.
func (p *progressLine) Record(n int) {
	p.mu.Lock()
	p.chunks++
	p.bytes += int64(n)
	p.mu.Unlock()
}

func (p *progressLine) Chunks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunks
}

func (p *progressLine) Bytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// Printf scrolls a message past the counter: the counter is erased, the
// message printed, the counter redrawn underneath.
func (p *progressLine) Printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		_, _ = p.out.WriteString(eraseLine)
		p.shown = false
	}
	fmt.Fprintf(p.out, format, args...)
	if p.stopCh != nil {
		p.redrawLocked()
	}
	_ = p.out.Flush()
}

func (p *progressLine) redrawLocked() {
	line := fmt.Sprintf("%s %s (%d chunk(s), %s)",
		spinnerFrames[p.frame%len(spinnerFrames)], p.stage,
		p.chunks, console.FormatBytes(p.bytes))
	if p.width > 0 && len(line) > p.width {
		line = line[:p.width]
	}
	_, _ = p.out.WriteString(eraseLine)
	_, _ = p.out.WriteString(line)
	p.shown = true
}

// handleQuery starts a query and drains its chunks. usePoll switches the
// drain strategy from blocking GetNext to the non-blocking server cursor.
func handleQuery(args []string, usePoll bool) error {
	name := "query"
	if usePoll {
		name = "poll"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
	gateway := fs.String("gateway", "", "gateway address (overrides config)")
	teams := fs.String("teams", "green,pink", "teams to query (green,pink)")
	outPath := fs.String("out", "-", "output file ('-' for stdout)")
	requestID := fs.String("request-id", "", "external request id (random if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("dataset name is required")
	}
	dataset := fs.Arg(0)

	needGreen, needPink, err := parseTeams(*teams)
	if err != nil {
		return err
	}
	reqID := *requestID
	if reqID == "" {
		reqID = uuid.NewString()
	}

	addr, err := gatewayAddress(*gateway, *cfgPath)
	if err != nil {
		return err
	}
	conn, err := wire.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	gw := wire.NewClientGatewayClient(conn)

	out, closeOut, err := openOutput(*outPath)
	if err != nil {
		return err
	}
	defer closeOut()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	start, err := gw.Start(ctx, &wire.Request{
		RequestID: reqID,
		Query:     dataset,
		NeedGreen: needGreen,
		NeedPink:  needPink,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("start query: %w", err)
	}
	if !start.Accepted {
		return fmt.Errorf("gateway rejected query (status %s)", start.Status)
	}

	progress := newProgressLine()
	progress.Printf("%s session %s opened (%s)\n",
		console.TagInfo(), start.SessionID, start.Status)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_, _ = gw.Close(ctx, &wire.CloseRequest{SessionID: start.SessionID})
	}()

	progress.Start()
	began := time.Now()
	if usePoll {
		err = drainPoll(gw, start.SessionID, out, progress)
	} else {
		err = drainGetNext(gw, start.SessionID, out, progress)
	}
	progress.Stop()
	if err != nil {
		return err
	}

	progress.Printf("%s %d chunk(s), %s in %s\n",
		console.TagSuccess(), progress.Chunks(),
		console.FormatBytes(progress.Bytes()),
		console.FormatDuration(time.Since(began)))
	return nil
}

// drainGetNext walks the session by index. Each call blocks server-side
// until the chunk exists or the session finishes.
func drainGetNext(gw *wire.ClientGatewayClient, sessionID string, out io.Writer, progress *progressLine) error {
	for index := 0; ; index++ {
		progress.SetStage(fmt.Sprintf("waiting for chunk %d", index))

		ctx, cancel := context.WithTimeout(context.Background(), getNextTimeout)
		resp, err := gw.GetNext(ctx, &wire.NextChunkRequest{SessionID: sessionID, Index: index})
		cancel()
		if err != nil {
			return fmt.Errorf("get chunk %d: %w", index, err)
		}
		if len(resp.Chunk) > 0 {
			if _, err := out.Write(resp.Chunk); err != nil {
				return err
			}
			progress.Record(len(resp.Chunk))
		}
		if !resp.HasMore {
			return nil
		}
	}
}

// drainPoll spins on the server-side cursor with a short backoff. The
// deadline bounds a session that never completes.
func drainPoll(gw *wire.ClientGatewayClient, sessionID string, out io.Writer, progress *progressLine) error {
	progress.SetStage("polling")
	deadline := time.Now().Add(pollDeadline)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		resp, err := gw.PollNext(ctx, &wire.PollRequest{SessionID: sessionID})
		cancel()
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if resp.Ready {
			deadline = time.Now().Add(pollDeadline)
			if len(resp.Chunk) > 0 {
				if _, err := out.Write(resp.Chunk); err != nil {
					return err
				}
				progress.Record(len(resp.Chunk))
			}
		}
		if !resp.HasMore {
			return nil
		}
		if !resp.Ready {
			if time.Now().After(deadline) {
				return fmt.Errorf("poll stalled for %s", console.FormatDuration(pollDeadline))
			}
			time.Sleep(pollBackoff)
		}
	}
}

func parseTeams(value string) (green, pink bool, err error) {
	for _, part := range strings.Split(value, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "green":
			green = true
		case "pink":
			pink = true
		case "":
		default:
			return false, false, fmt.Errorf("unknown team %q", part)
		}
	}
	if !green && !pink {
		return false, false, errors.New("at least one team is required")
	}
	return green, pink, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}
