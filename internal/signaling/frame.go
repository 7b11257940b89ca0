package signaling

import (
	"encoding/json"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// Frame is one message received from the hub. Data holds the raw JSON so
// callers decode into the concrete type selected by Type.
type Frame struct {
	Type string
	Data []byte
}

// Decode unmarshals the frame into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

func parseFrame(data []byte) (Frame, error) {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return Frame{}, err
	}
	return Frame{Type: base.Type, Data: data}, nil
}
