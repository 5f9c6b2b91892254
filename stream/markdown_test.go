package stream_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentrt/stream"
)

type recordedEvents struct {
	headers []string
	bullets []string
	levels  []int
	finishN int
}

func (r *recordedEvents) handler() stream.MarkdownHandlerFuncs {
	return stream.MarkdownHandlerFuncs{
		Header: func(level int, text string) {
			r.levels = append(r.levels, level)
			r.headers = append(r.headers, text)
		},
		Bullet: func(text string) { r.bullets = append(r.bullets, text) },
		Finish: func() { r.finishN++ },
	}
}

func TestMarkdownParser_FeedAcrossFragmentsFlushesOnNewline(t *testing.T) {
	rec := &recordedEvents{}
	p := stream.NewMarkdownParser(rec.handler())

	p.Feed("## Resu")
	require.Empty(t, rec.headers, "incomplete line must not flush yet")
	p.Feed("lts\n- first bu")
	require.Equal(t, []string{"Results"}, rec.headers)
	require.Equal(t, []int{2}, rec.levels)
	p.Feed("llet\n")
	require.Equal(t, []string{"first bullet"}, rec.bullets)

	p.Close()
	require.Equal(t, 1, rec.finishN)
}

func TestMarkdownParser_CloseFlushesTrailingPartialLine(t *testing.T) {
	rec := &recordedEvents{}
	p := stream.NewMarkdownParser(rec.handler())
	p.Feed("# Title with no trailing newline")
	p.Close()
	require.Equal(t, []string{"Title with no trailing newline"}, rec.headers)
	require.Equal(t, 1, rec.finishN)
}

func TestMarkdownParser_IgnoresPlainLines(t *testing.T) {
	rec := &recordedEvents{}
	p := stream.NewMarkdownParser(rec.handler())
	p.Feed("just some prose\n* bullet one\nmore prose\n")
	p.Close()
	require.Equal(t, []string{"bullet one"}, rec.bullets)
	require.Empty(t, rec.headers)
}

func TestMarkdownParser_FeedAfterCloseIsNoop(t *testing.T) {
	rec := &recordedEvents{}
	p := stream.NewMarkdownParser(rec.handler())
	p.Close()
	require.Equal(t, 1, rec.finishN)
	p.Feed("# late header\n")
	require.Empty(t, rec.headers)
}

type fakeStringSequence struct {
	frags []string
	idx   int
}

func (s *fakeStringSequence) Next(ctx context.Context) (string, error) {
	if s.idx >= len(s.frags) {
		var zero string
		return zero, io.EOF
	}
	v := s.frags[s.idx]
	s.idx++
	return v, nil
}

func (s *fakeStringSequence) Close() error { return nil }

func TestConsumeMarkdown_DrainsSequenceAndFinishes(t *testing.T) {
	rec := &recordedEvents{}
	seq := &fakeStringSequence{frags: []string{"### Plan\n", "- step one\n", "- step two\n"}}
	err := stream.ConsumeMarkdown(context.Background(), seq, rec.handler())
	require.NoError(t, err)
	require.Equal(t, []string{"Plan"}, rec.headers)
	require.Equal(t, []string{"step one", "step two"}, rec.bullets)
	require.Equal(t, 1, rec.finishN)
}
