package stream

import "context"

// Section is one decoded (header, bullets...) group: the header that opened
// it, its nesting level, and every bullet line seen before the next header
// or the stream's end.
type Section struct {
	Level   int
	Header  string
	Bullets []string
}

// StructuredDecoder maps a stream of markdown header/bullet events onto a
// sequence of Section records, one per header encountered. Bullets seen
// before the first header are collected into a zero-value-header leading
// Section so no content is dropped.
//
// A StructuredDecoder is restartable per stream: Reset clears accumulated
// state so the same decoder instance can be reused across independent
// streams, but it must not be fed concurrently from two streams, and a
// single in-progress decode cannot itself be rewound mid-stream.
type StructuredDecoder struct {
	sections []Section
	current  *Section
}

// NewStructuredDecoder returns an empty decoder ready to consume one
// stream's worth of markdown events.
func NewStructuredDecoder() *StructuredDecoder {
	return &StructuredDecoder{}
}

// Reset discards any decoded sections, making the decoder ready to consume
// a new, independent stream.
func (d *StructuredDecoder) Reset() {
	d.sections = nil
	d.current = nil
}

// OnHeader implements MarkdownHandler by opening a new Section.
func (d *StructuredDecoder) OnHeader(level int, text string) {
	d.sections = append(d.sections, Section{Level: level, Header: text})
	d.current = &d.sections[len(d.sections)-1]
}

// OnBullet implements MarkdownHandler by appending to the current Section,
// opening a headerless leading Section first if none is open yet.
func (d *StructuredDecoder) OnBullet(text string) {
	if d.current == nil {
		d.sections = append(d.sections, Section{})
		d.current = &d.sections[len(d.sections)-1]
	}
	d.current.Bullets = append(d.current.Bullets, text)
}

// OnFinish implements MarkdownHandler. Decoding needs no end-of-stream
// bookkeeping beyond what OnHeader/OnBullet already maintain.
func (d *StructuredDecoder) OnFinish() {}

// Sections returns the Section records decoded so far, in stream order.
func (d *StructuredDecoder) Sections() []Section {
	return d.sections
}

// DecodeMarkdown drains seq through a fresh per-call MarkdownParser wired to
// decoder and returns the accumulated Sections once the stream ends.
// decoder is reset first so callers may reuse one decoder across streams.
func DecodeMarkdown(ctx context.Context, seq LazySequence[string], decoder *StructuredDecoder) ([]Section, error) {
	decoder.Reset()
	if err := ConsumeMarkdown(ctx, seq, decoder); err != nil {
		return nil, err
	}
	return decoder.Sections(), nil
}

var _ MarkdownHandler = (*StructuredDecoder)(nil)
