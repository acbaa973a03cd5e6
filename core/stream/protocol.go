package stream

import (
	"github.com/goccy/go-json"
)

// Frame types.
const (
	FrameEvent     = "event"
	FrameHeartbeat = "heartbeat"
	FrameLagged    = "lagged"
	FramePreview   = "preview"
)

// ServerFrame is a message sent to the client.
type ServerFrame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	TS      int64           `json:"ts,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Skipped uint64          `json:"skipped,omitempty"`
}

// ClientFrame is a message received from the client.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PreviewData is the payload of a preview client frame.
type PreviewData struct {
	Content string `json:"content"`
}

func eventFrame(topic string, ts int64, envelope []byte) ServerFrame {
	return ServerFrame{Type: FrameEvent, Topic: topic, TS: ts, Event: envelope}
}

func heartbeatFrame(ts int64) ServerFrame {
	return ServerFrame{Type: FrameHeartbeat, TS: ts}
}

func laggedFrame(skipped uint64) ServerFrame {
	return ServerFrame{Type: FrameLagged, Skipped: skipped}
}

func encodeFrame(f ServerFrame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	err := json.Unmarshal(data, &f)
	return f, err
}

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
