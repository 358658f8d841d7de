package tuitest

import (
	"bytes"
	"io"
)

// reply answers one terminal query the program may send while probing its
// environment. Without an answer termenv waits for its timeout on every start.
type reply struct {
	query  []byte
	answer []byte
}

const (
	bel = "\x07"
	st  = "\x1b\\"

	foreground = "rgb:cccc/cccc/cccc"
	background = "rgb:0000/0000/0000"
)

var replies = []reply{
	{query: []byte("\x1b[6n"), answer: []byte("\x1b[1;1R")},
	{query: []byte("\x1b[c"), answer: []byte("\x1b[?62;22c")},
	{query: []byte("\x1b]10;?" + bel), answer: []byte("\x1b]10;" + foreground + bel)},
	{query: []byte("\x1b]10;?" + st), answer: []byte("\x1b]10;" + foreground + st)},
	{query: []byte("\x1b]11;?" + bel), answer: []byte("\x1b]11;" + background + bel)},
	{query: []byte("\x1b]11;?" + st), answer: []byte("\x1b]11;" + background + st)},
}

// pending bounds the unscanned output kept between reads; keep is what
// survives a trim, enough for a query split across two reads.
const (
	pending = 256
	keep    = 64
)

// terminalResponder plays the terminal side of the PTY for queries.
type terminalResponder struct {
	w   io.Writer
	buf []byte
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, pending)}
}

// Process scans the next chunk of program output and answers every query
// found in it, in the order they were sent.
func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for {
		r, end, ok := tr.earliest()
		if !ok {
			break
		}
		tr.buf = tr.buf[end:]
		_, _ = tr.w.Write(r.answer)
	}
	if len(tr.buf) > pending {
		tr.buf = append(tr.buf[:0], tr.buf[len(tr.buf)-keep:]...)
	}
}

// earliest finds the first query in the buffer and where it ends.
func (tr *terminalResponder) earliest() (reply, int, bool) {
	best, bestAt := reply{}, -1
	for _, r := range replies {
		at := bytes.Index(tr.buf, r.query)
		if at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = r, at
		}
	}
	if bestAt < 0 {
		return reply{}, 0, false
	}
	return best, bestAt + len(best.query), true
}
