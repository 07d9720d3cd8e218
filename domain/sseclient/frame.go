package sseclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Frame is one raw SSE frame: the collected `event:`/`data:`/`id:` lines
// between two blank-line-delimited blocks (spec §4.2 framing).
type Frame struct {
	EventType string
	Data      string
	ID        string
}

// Parser incrementally frames SSE bytes across TCP chunk boundaries. It is
// not safe for concurrent use; the SSE Client owns one Parser per
// connection attempt.
type Parser struct {
	buf bytes.Buffer
}

// Feed appends chunk to the inter-chunk buffer and returns every complete
// frame now available, leaving any trailing partial frame buffered for the
// next call (spec §4.2: "must preserve an inter-chunk buffer so that an
// event spanning two TCP reads is still recovered").
func (p *Parser) Feed(chunk []byte) []Frame {
	p.buf.Write(chunk)

	var frames []Frame
	for {
		raw := p.buf.Bytes()
		idx := bytes.Index(raw, []byte("\n\n"))
		if idx < 0 {
			break
		}
		block := raw[:idx]
		p.buf.Next(idx + 2)
		if f, ok := parseBlock(string(block)); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func parseBlock(block string) (Frame, bool) {
	var f Frame
	var dataLines []string
	empty := true

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch key {
		case "event":
			f.EventType = value
			empty = false
		case "data":
			dataLines = append(dataLines, value)
			empty = false
		case "id":
			f.ID = value
			empty = false
		}
	}
	if empty {
		return Frame{}, false
	}
	f.Data = strings.Join(dataLines, "\n")
	return f, true
}

// Event is the validated, merged representation of one SSE frame (spec
// §4: "SSEEvent").
type Event struct {
	ID         string
	Type       string
	MapID      string
	Timestamp  string
	Payload    map[string]interface{}
	ServerTime string
}

// BuildEvent merges {type: f.EventType, id: f.ID, ...decoded JSON data}
// and validates the result per §4.2. ok is false for frames that must be
// dropped (malformed JSON or missing required fields); the caller logs
// and continues without terminating the stream.
func BuildEvent(f Frame) (Event, bool) {
	fields := map[string]interface{}{}
	if f.Data != "" {
		if err := json.Unmarshal([]byte(f.Data), &fields); err != nil {
			return Event{}, false
		}
	}
	if f.EventType != "" {
		fields["type"] = f.EventType
	}
	if f.ID != "" {
		fields["id"] = f.ID
	}

	id, _ := fields["id"].(string)
	typ, _ := fields["type"].(string)
	mapID, _ := fields["map_id"].(string)
	if id == "" || typ == "" || mapID == "" {
		return Event{}, false
	}

	ev := Event{ID: id, Type: typ, MapID: mapID}

	if typ == "connected" {
		serverTime, _ := fields["server_time"].(string)
		if serverTime == "" {
			return Event{}, false
		}
		ev.ServerTime = serverTime
		return ev, true
	}

	timestamp, _ := fields["timestamp"].(string)
	payload, hasPayload := fields["payload"].(map[string]interface{})
	if timestamp == "" || !hasPayload {
		return Event{}, false
	}
	ev.Timestamp = timestamp
	ev.Payload = payload
	return ev, true
}
