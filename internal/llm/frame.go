package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	framePrefix  = "data: "
	doneSentinel = "[DONE]"
)

// FrameKind tags the outcome of decoding one stream line
type FrameKind int

const (
	// FrameIgnored covers blank lines, non-data lines and malformed payloads.
	FrameIgnored FrameKind = iota
	// FrameData carries a content fragment and/or a token count.
	FrameData
	// FrameDone is the terminator sentinel.
	FrameDone
	// FrameError reports an upstream failure after the stream started.
	FrameError
)

// Frame is one decoded "data: " line
type Frame struct {
	Kind        FrameKind
	Content     string
	TotalTokens int
	// Error is set for FrameError
	Error string
}

type framePayload struct {
	Content string          `json:"content"`
	Error   json.RawMessage `json:"error"`
	Usage   *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// DecodeFrame decodes a single line of an event stream. It never fails:
// anything that is not a well-formed data frame comes back as FrameIgnored.
func DecodeFrame(line string) Frame {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, framePrefix) {
		return Frame{Kind: FrameIgnored}
	}

	data := line[len(framePrefix):]
	if strings.TrimSpace(data) == doneSentinel {
		return Frame{Kind: FrameDone}
	}

	var payload framePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Frame{Kind: FrameIgnored}
	}

	if len(payload.Error) > 0 && string(payload.Error) != "null" {
		return Frame{Kind: FrameError, Error: decodeErrorField(payload.Error)}
	}

	frame := Frame{Kind: FrameData, Content: payload.Content}
	if payload.Usage != nil {
		frame.TotalTokens = payload.Usage.TotalTokens
	}
	return frame
}

// decodeErrorField accepts "error": "msg" and "error": {"message": "msg"}
func decodeErrorField(raw json.RawMessage) string {
	var message string
	if json.Unmarshal(raw, &message) == nil {
		if message == "" {
			return "upstream error"
		}
		return message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	return "upstream error"
}

// WriteFrame writes v as a single "data: <json>" event
func WriteFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", framePrefix, data)
	return err
}

// WriteDone writes the stream terminator
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, framePrefix+doneSentinel+"\n\n")
	return err
}
