package stream

import (
	"context"
	"errors"
	"io"
	"strings"
)

// MarkdownHandler receives the events a MarkdownParser emits as it consumes
// a token stream. Implementations must return quickly; the parser calls
// these synchronously from Feed/Close.
type MarkdownHandler interface {
	OnHeader(level int, text string)
	OnBullet(text string)
	OnFinish()
}

// MarkdownHandlerFuncs adapts three functions into a MarkdownHandler for
// callers that do not want to define a named type.
type MarkdownHandlerFuncs struct {
	Header func(level int, text string)
	Bullet func(text string)
	Finish func()
}

func (h MarkdownHandlerFuncs) OnHeader(level int, text string) {
	if h.Header != nil {
		h.Header(level, text)
	}
}

func (h MarkdownHandlerFuncs) OnBullet(text string) {
	if h.Bullet != nil {
		h.Bullet(text)
	}
}

func (h MarkdownHandlerFuncs) OnFinish() {
	if h.Finish != nil {
		h.Finish()
	}
}

// MarkdownParser consumes arbitrarily-chunked token fragments and emits
// line-oriented markdown events (header, bullet) to a MarkdownHandler,
// buffering any incomplete trailing line until the next fragment or Close
// supplies its terminator. It recognizes ATX headers ("#".."######") and
// "-"/"*" bullet list items; any other line is ignored.
//
// A MarkdownParser is single-use: once Close has been called it must not be
// fed further, matching the restartable-per-stream-only contract the
// decoder built on top of it relies on.
type MarkdownParser struct {
	handler MarkdownHandler
	buf     strings.Builder
	closed  bool
}

// NewMarkdownParser returns a parser that reports events to handler.
func NewMarkdownParser(handler MarkdownHandler) *MarkdownParser {
	return &MarkdownParser{handler: handler}
}

// Feed appends a fragment of stream text, flushing any complete lines it
// contains (i.e. up to and including each "\n") to the handler. An
// incomplete trailing line is retained in the internal buffer.
func (p *MarkdownParser) Feed(fragment string) {
	if p.closed {
		return
	}
	p.buf.WriteString(fragment)
	for {
		buffered := p.buf.String()
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			return
		}
		line := buffered[:idx]
		p.buf.Reset()
		p.buf.WriteString(buffered[idx+1:])
		p.emitLine(line)
	}
}

// Close flushes any buffered partial line as a final line and fires
// OnFinish. Idempotent; calls after the first are no-ops.
func (p *MarkdownParser) Close() {
	if p.closed {
		return
	}
	if p.buf.Len() > 0 {
		p.emitLine(p.buf.String())
		p.buf.Reset()
	}
	p.closed = true
	p.handler.OnFinish()
}

func (p *MarkdownParser) emitLine(line string) {
	trimmed := strings.TrimRight(line, "\r")
	if level, text, ok := parseHeaderLine(trimmed); ok {
		p.handler.OnHeader(level, text)
		return
	}
	if text, ok := parseBulletLine(trimmed); ok {
		p.handler.OnBullet(text)
		return
	}
}

func parseHeaderLine(line string) (level int, text string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	level = 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(rest), true
}

func parseBulletLine(line string) (text string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(trimmed) < 2 {
		return "", false
	}
	marker := trimmed[0]
	if marker != '-' && marker != '*' {
		return "", false
	}
	if trimmed[1] != ' ' {
		return "", false
	}
	return strings.TrimSpace(trimmed[2:]), true
}

// ConsumeMarkdown drains seq, feeding every fragment to a fresh
// MarkdownParser wired to handler, and closes the parser once seq
// terminates normally. It blocks until seq ends or ctx is cancelled.
func ConsumeMarkdown(ctx context.Context, seq LazySequence[string], handler MarkdownHandler) error {
	parser := NewMarkdownParser(handler)
	for {
		frag, err := seq.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				parser.Close()
				return nil
			}
			return err
		}
		parser.Feed(frag)
	}
}
