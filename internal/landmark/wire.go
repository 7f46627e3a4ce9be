package landmark

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ayusman/physiopal/internal/detector"
)

// Message is the JSON form of one detection, used by recordings and by the
// session WebSocket. TimestampMs is the stream offset in milliseconds.
type Message struct {
	TimestampMs int64          `json:"t"`
	Landmarks   []MessagePoint `json:"landmarks"`
}

// MessagePoint is one landmark inside a Message.
type MessagePoint struct {
	Joint      Joint   `json:"joint"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Timestamp returns the message offset as a duration.
func (m Message) Timestamp() time.Duration {
	return time.Duration(m.TimestampMs) * time.Millisecond
}

// Pose converts the message to detector output.
func (m Message) Pose() detector.PoseLandmarks {
	p := detector.PoseLandmarks{Points: make([]detector.Keypoint, 0, len(m.Landmarks))}
	for _, l := range m.Landmarks {
		if l.Joint.Virtual() {
			continue
		}
		p.Points = append(p.Points, detector.Keypoint{
			Index:      int(l.Joint),
			Point3D:    detector.Point3D{X: l.X, Y: l.Y, Z: l.Z},
			Visibility: l.Visibility,
		})
	}
	return p
}

// NewMessage encodes detector output taken at ts.
func NewMessage(ts time.Duration, pose detector.PoseLandmarks) Message {
	m := Message{
		TimestampMs: ts.Milliseconds(),
		Landmarks:   make([]MessagePoint, 0, len(pose.Points)),
	}
	for _, kp := range pose.Points {
		m.Landmarks = append(m.Landmarks, MessagePoint{
			Joint:      Joint(kp.Index),
			X:          kp.X,
			Y:          kp.Y,
			Z:          kp.Z,
			Visibility: kp.Visibility,
		})
	}
	return m
}

// Decoder reads JSON-lines recordings of Messages.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: s}
}

// Next returns the next message, or io.EOF at the end of the recording.
// Blank lines are skipped.
func (d *Decoder) Next() (Message, error) {
	for d.scanner.Scan() {
		d.line++
		data := d.scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return Message{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		return m, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

// Encoder writes JSON-lines recordings.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one message followed by a newline.
func (e *Encoder) Encode(m Message) error {
	return e.enc.Encode(m)
}
