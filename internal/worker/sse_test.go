package worker

import (
	"testing"

	"github.com/aiperf/aiperf/internal/aierrors"
)

func TestSSEParserSingleChunk(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("data: a\n\ndata: b\n\ndata: [DONE]\n\n"), 100)

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.PerfNs != 100 {
			t.Errorf("message %d perf_ns = %d, want 100", i, m.PerfNs)
		}
	}
	if msgs[0].DataContent() != "a" || msgs[1].DataContent() != "b" {
		t.Errorf("data contents = %q, %q", msgs[0].DataContent(), msgs[1].DataContent())
	}
	if !msgs[2].IsDone() {
		t.Error("third message should be the [DONE] sentinel")
	}
}

func TestSSEParserSplitChunks(t *testing.T) {
	var p SSEParser
	first := p.Feed([]byte("data: a\n\n"), 100)
	second := p.Feed([]byte("data: b\n\ndata: [DONE]\n\n"), 200)

	if len(first) != 1 {
		t.Fatalf("first chunk: expected 1 message, got %d", len(first))
	}
	if first[0].PerfNs != 100 {
		t.Errorf("first message perf_ns = %d, want 100", first[0].PerfNs)
	}
	if len(second) != 2 {
		t.Fatalf("second chunk: expected 2 messages, got %d", len(second))
	}
	for i, m := range second {
		if m.PerfNs != 200 {
			t.Errorf("second-chunk message %d perf_ns = %d, want 200", i, m.PerfNs)
		}
	}
}

func TestSSEParserMessageSpanningChunks(t *testing.T) {
	var p SSEParser
	if msgs := p.Feed([]byte("data: hel"), 100); len(msgs) != 0 {
		t.Fatalf("incomplete message should not parse, got %d", len(msgs))
	}
	msgs := p.Feed([]byte("lo\n\n"), 200)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].PerfNs != 200 {
		t.Errorf("perf_ns = %d, want completion-chunk time 200", msgs[0].PerfNs)
	}
	if msgs[0].DataContent() != "hello" {
		t.Errorf("data = %q, want %q", msgs[0].DataContent(), "hello")
	}
}

func TestSSEParserCRLFDelimiter(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("data: x\r\n\r\ndata: y\r\n\r\n"), 50)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].DataContent() != "x" || msgs[1].DataContent() != "y" {
		t.Errorf("data contents = %q, %q", msgs[0].DataContent(), msgs[1].DataContent())
	}
}

func TestSSEParserFlushTrailingBytes(t *testing.T) {
	var p SSEParser
	p.Feed([]byte("data: tail"), 100)
	msg, ok := p.Flush(300)
	if !ok {
		t.Fatal("expected a final message from trailing bytes")
	}
	if msg.DataContent() != "tail" || msg.PerfNs != 300 {
		t.Errorf("flush got data=%q perf_ns=%d", msg.DataContent(), msg.PerfNs)
	}
	if _, ok := p.Flush(400); ok {
		t.Error("second flush should be empty")
	}
}

func TestSSEMultiLineData(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("data: line1\ndata: line2\n\n"), 10)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := msgs[0].DataContent(); got != "line1\nline2" {
		t.Errorf("data = %q, want joined lines", got)
	}
}

func TestSSEErrorEvent(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("event: error\n: model overloaded\n\n"), 10)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	err := msgs[0].CheckError()
	if err == nil {
		t.Fatal("expected an error from event: error message")
	}
	details, ok := err.(aierrors.ErrorDetails)
	if !ok {
		t.Fatalf("expected ErrorDetails, got %T", err)
	}
	if details.Code != 502 {
		t.Errorf("code = %d, want 502", details.Code)
	}
	if details.Message != "model overloaded" {
		t.Errorf("message = %q, want comment field", details.Message)
	}
}

func TestSSEErrorEventWithoutComment(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("event: error\ndata: boom\n\n"), 10)
	err := msgs[0].CheckError()
	if err == nil {
		t.Fatal("expected an error")
	}
	details := err.(aierrors.ErrorDetails)
	if details.Code != 502 {
		t.Errorf("code = %d, want 502", details.Code)
	}
}

func TestSSENoErrorOnPlainData(t *testing.T) {
	var p SSEParser
	msgs := p.Feed([]byte("data: fine\n\n"), 10)
	if err := msgs[0].CheckError(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
