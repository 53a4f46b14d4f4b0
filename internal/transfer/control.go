package transfer

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a control message.
type Kind string

const (
	KindOffer  Kind = MessageTypeFileOffer
	KindAccept Kind = MessageTypeFileAccept
	KindReject Kind = MessageTypeFileReject
	KindHeader Kind = MessageTypeFileHeader
	KindDone   Kind = MessageTypeFileDone
)

// Control is a decoded text frame on the data channel. Filename and Size
// are set for offers and headers.
type Control struct {
	Kind     Kind
	Filename string
	Size     int64
}

type wireControl struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	Size     *int64 `json:"size,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

type offerFrame struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type typeFrame struct {
	Type string `json:"type"`
}

// Headers and completion markers go out untagged, which is the shape
// browser peers expect.
type headerFrame struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type doneFrame struct {
	Done bool `json:"done"`
}

// EncodeControl renders a control message as JSON.
func EncodeControl(c Control) ([]byte, error) {
	switch c.Kind {
	case KindOffer:
		return json.Marshal(offerFrame{Type: MessageTypeFileOffer, Filename: c.Filename, Size: c.Size})
	case KindAccept, KindReject:
		return json.Marshal(typeFrame{Type: string(c.Kind)})
	case KindHeader:
		return json.Marshal(headerFrame{Filename: c.Filename, Size: c.Size})
	case KindDone:
		return json.Marshal(doneFrame{Done: true})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownControl, c.Kind)
}

// DecodeControl parses a text frame. Both the untagged header and done
// shapes and their tagged forms are accepted.
func DecodeControl(data []byte) (Control, error) {
	var w wireControl
	if err := json.Unmarshal(data, &w); err != nil {
		return Control{}, fmt.Errorf("%w: %v", ErrUnknownControl, err)
	}

	switch w.Type {
	case MessageTypeFileOffer:
		if w.Filename == "" || w.Size == nil || *w.Size < 0 {
			return Control{}, fmt.Errorf("%w: malformed offer", ErrUnknownControl)
		}
		return Control{Kind: KindOffer, Filename: w.Filename, Size: *w.Size}, nil
	case MessageTypeFileAccept:
		return Control{Kind: KindAccept}, nil
	case MessageTypeFileReject:
		return Control{Kind: KindReject}, nil
	case MessageTypeFileDone:
		return Control{Kind: KindDone}, nil
	case MessageTypeFileHeader, "":
		if w.Type == "" && w.Done {
			return Control{Kind: KindDone}, nil
		}
		if w.Filename == "" || w.Size == nil || *w.Size < 0 {
			return Control{}, fmt.Errorf("%w: malformed header", ErrUnknownControl)
		}
		return Control{Kind: KindHeader, Filename: w.Filename, Size: *w.Size}, nil
	}
	return Control{}, fmt.Errorf("%w: type %q", ErrUnknownControl, w.Type)
}
