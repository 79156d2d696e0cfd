package worker

import (
	"bytes"
	"strings"

	"github.com/aiperf/aiperf/internal/aierrors"
)

// SSE field names per the HTML SSE Living Standard. Comment fields are
// lines starting with ':'.
const (
	sseFieldData    = "data"
	sseFieldEvent   = "event"
	sseFieldComment = "comment"

	sseEventError = "error"

	sseDoneSentinel = "[DONE]"
)

// SSEField is one "name: value" line of an SSE message.
type SSEField struct {
	Name  string
	Value string
}

// SSEMessage is one complete SSE message: all fields between two blank-line
// delimiters, stamped with the arrival time of the chunk that completed it
type SSEMessage struct {
	PerfNs int64
	Fields []SSEField
}

// DataContent joins the message's data field values with "\n", as the SSE
// spec requires for multi-line data.
func (m SSEMessage) DataContent() string {
	var parts []string
	for _, f := range m.Fields {
		if f.Name == sseFieldData && f.Value != "" {
			parts = append(parts, f.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// IsDone reports whether this message is the stream-terminating "[DONE]"
// sentinel.
func (m SSEMessage) IsDone() bool {
	return m.DataContent() == sseDoneSentinel
}

// CheckError raises the SSE error path: a message carrying an
// "event: error" field produces a code-502 transport error whose message is
// the comment field if present, else the raw message.
func (m SSEMessage) CheckError() error {
	hasError := false
	for _, f := range m.Fields {
		if f.Name == sseFieldEvent && f.Value == sseEventError {
			hasError = true
			break
		}
	}
	if !hasError {
		return nil
	}
	for _, f := range m.Fields {
		if f.Name == sseFieldComment {
			return aierrors.ErrorDetails{Code: 502, Type: "SSEResponseError", Message: f.Value}
		}
	}
	var raw strings.Builder
	for i, f := range m.Fields {
		if i > 0 {
			raw.WriteByte('\n')
		}
		raw.WriteString(f.Name + ": " + f.Value)
	}
	return aierrors.ErrorDetails{Code: 502, Type: "SSEResponseError", Message: "unknown error in SSE response: " + raw.String()}
}

// SSEParser accumulates raw body chunks and splits out complete SSE
// messages. The buffer is a single slice trimmed in place after each parsed
// delimiter (slice-delete, not copy), so peak memory stays about one
// message plus one chunk regardless of stream length.
type SSEParser struct {
	buf []byte
}

var (
	sseDelimCRLF = []byte("\r\n\r\n")
	sseDelimLF   = []byte("\n\n")
)

// Feed appends one body chunk and returns every message completed by it,
// each stamped with perfNs — the arrival time of this chunk, not of the
// bytes that started the message.
func (p *SSEParser) Feed(chunk []byte, perfNs int64) []SSEMessage {
	p.buf = append(p.buf, chunk...)

	var out []SSEMessage
	for {
		// Spec delimiter first, lenient-server fallback second.
		idx := bytes.Index(p.buf, sseDelimCRLF)
		delimLen := 4
		if idx == -1 {
			idx = bytes.Index(p.buf, sseDelimLF)
			delimLen = 2
		}
		if idx == -1 {
			break
		}

		raw := string(p.buf[:idx])
		p.buf = append(p.buf[:0], p.buf[idx+delimLen:]...)

		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		out = append(out, parseSSEMessage(raw, perfNs))
	}
	return out
}

// Flush returns the final message from any bytes still buffered at stream
// end — some servers omit the trailing delimiter.
func (p *SSEParser) Flush(perfNs int64) (SSEMessage, bool) {
	raw := strings.TrimSpace(string(p.buf))
	p.buf = p.buf[:0]
	if raw == "" {
		return SSEMessage{}, false
	}
	return parseSSEMessage(raw, perfNs), true
}

// parseSSEMessage splits one raw message into fields. Parsing is permissive
//: a line without a colon becomes a field with an empty value,
// and a line starting with ':' is a comment.
func parseSSEMessage(raw string, perfNs int64) SSEMessage {
	msg := SSEMessage{PerfNs: perfNs}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			msg.Fields = append(msg.Fields, SSEField{Name: sseFieldComment, Value: strings.TrimSpace(line[1:])})
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			msg.Fields = append(msg.Fields, SSEField{Name: line})
			continue
		}
		msg.Fields = append(msg.Fields, SSEField{Name: name, Value: strings.TrimPrefix(value, " ")})
	}
	return msg
}
