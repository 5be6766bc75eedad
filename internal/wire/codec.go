package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// splitPayload splits payload into exactly n sections, splitting only
// at the first n-1 Separator bytes so a Separator embedded in the final
// (body) section is left untouched. Returns the structural error
// missing if fewer than n sections result.
func splitPayload(payload []byte, n int, missing error) ([][]byte, error) {
	parts := bytes.SplitN(payload, []byte{Separator}, n)
	if len(parts) != n {
		return nil, missing
	}
	return parts, nil
}

func encodeHead(h Head) ([]byte, error) {
	if bytes.IndexByte([]byte(h.Caller), Separator) >= 0 {
		return nil, ErrCallerSeparator
	}
	buf := make([]byte, 4, 4+len(h.Caller))
	binary.BigEndian.PutUint16(buf[0:2], h.Version.Major)
	binary.BigEndian.PutUint16(buf[2:4], h.Version.Patch)
	buf = append(buf, h.Caller...)
	return buf, nil
}

func decodeHead(b []byte) (Head, error) {
	if len(b) < 4 {
		return Head{}, ErrInvalidHead
	}
	major := binary.BigEndian.Uint16(b[0:2])
	patch := binary.BigEndian.Uint16(b[2:4])
	caller := b[4:]
	if !utf8.Valid(caller) {
		return Head{}, ErrInvalidHead
	}
	return Head{Version: Version{Major: major, Patch: patch}, Caller: string(caller)}, nil
}

func encodeAction(a Action) ([]byte, error) {
	if bytes.IndexByte([]byte(a.Module), ':') >= 0 {
		return nil, ErrModuleSeparator
	}
	namespace := a.Module + ":" + a.ID
	buf := make([]byte, 1, 1+len(namespace))
	buf[0] = byte(a.Type)
	buf = append(buf, namespace...)
	return buf, nil
}

func decodeAction(b []byte) (Action, error) {
	if len(b) < 1 {
		return Action{}, ErrInvalidAction
	}
	t := ActionType(b[0])
	if !t.Valid() {
		return Action{}, ErrInvalidActionType
	}
	namespace := b[1:]
	if !utf8.Valid(namespace) {
		return Action{}, ErrInvalidAction
	}
	idx := bytes.IndexByte(namespace, ':')
	if idx < 0 {
		return Action{}, ErrInvalidAction
	}
	return Action{
		Type:   t,
		Module: string(namespace[:idx]),
		ID:     string(namespace[idx+1:]),
	}, nil
}

func encodeStatus(s Status) []byte {
	return []byte{byte(int8(s.Type))}
}

func decodeStatus(b []byte) (Status, error) {
	if len(b) != 1 {
		return Status{}, ErrInvalidStatus
	}
	t := StatusType(int8(b[0]))
	if !t.valid() {
		return Status{}, ErrInvalidStatus
	}
	return Status{Type: t}, nil
}

func wrapFrame(kind byte, payload []byte) []byte {
	out := make([]byte, 5, 5+len(payload))
	out[0] = kind
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	out = append(out, payload...)
	return out
}

// Request is a request-shaped frame: a client action, or a broker-
// emitted Callback (which is carried as a Request with ActionType
// Callback).
type Request struct {
	Head   Head
	Action Action
	Body   []byte
}

// NewRequest builds a Request at the broker's current version.
func NewRequest(caller string, action Action, body []byte) Request {
	return Request{Head: NewHead(caller), Action: action, Body: body}
}

// Encode produces the complete wire frame for r, including the 1-byte
// kind and 4-byte length prefix.
func (r Request) Encode() ([]byte, error) {
	headBytes, err := encodeHead(r.Head)
	if err != nil {
		return nil, err
	}
	actionBytes, err := encodeAction(r.Action)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(headBytes)+len(actionBytes)+len(r.Body)+2)
	payload = append(payload, headBytes...)
	payload = append(payload, Separator)
	payload = append(payload, actionBytes...)
	payload = append(payload, Separator)
	payload = append(payload, r.Body...)

	return wrapFrame(kindRequest, payload), nil
}

// DecodeRequestPayload decodes a Request from a frame's payload section
// (the bytes after the 1-byte kind and 4-byte length have already been
// read and validated by the transport layer).
func DecodeRequestPayload(payload []byte) (Request, error) {
	parts, err := splitPayload(payload, 3, ErrInvalidRequest)
	if err != nil {
		return Request{}, err
	}

	head, err := decodeHead(parts[0])
	if err != nil {
		return Request{}, err
	}
	action, err := decodeAction(parts[1])
	if err != nil {
		return Request{}, err
	}

	return Request{Head: head, Action: action, Body: parts[2]}, nil
}

// Response is a response-shaped frame carrying a status instead of an
// action.
type Response struct {
	Head   Head
	Status Status
	Body   []byte
}

// NewResponse builds a Response at the broker's current version.
func NewResponse(caller string, status Status, body []byte) Response {
	return Response{Head: NewHead(caller), Status: status, Body: body}
}

// NewOKResponse builds a StatusOK Response with an empty body.
func NewOKResponse(caller string) Response {
	return NewResponse(caller, NewStatus(StatusOK), nil)
}

// Encode produces the complete wire frame for r, including the 1-byte
// kind and 4-byte length prefix.
func (r Response) Encode() ([]byte, error) {
	headBytes, err := encodeHead(r.Head)
	if err != nil {
		return nil, err
	}
	statusBytes := encodeStatus(r.Status)

	payload := make([]byte, 0, len(headBytes)+len(statusBytes)+len(r.Body)+2)
	payload = append(payload, headBytes...)
	payload = append(payload, Separator)
	payload = append(payload, statusBytes...)
	payload = append(payload, Separator)
	payload = append(payload, r.Body...)

	return wrapFrame(kindResponse, payload), nil
}

// DecodeResponsePayload decodes a Response from a frame's payload
// section, mirroring DecodeRequestPayload.
func DecodeResponsePayload(payload []byte) (Response, error) {
	parts, err := splitPayload(payload, 3, ErrInvalidResponse)
	if err != nil {
		return Response{}, err
	}

	head, err := decodeHead(parts[0])
	if err != nil {
		return Response{}, err
	}
	status, err := decodeStatus(parts[1])
	if err != nil {
		return Response{}, err
	}

	return Response{Head: head, Status: status, Body: parts[2]}, nil
}

// Kind identifies which of Request/Response a raw frame carries, read
// directly off the wire by the transport layer before it knows which
// decoder to invoke.
type Kind byte

const (
	KindRequest  Kind = Kind(kindRequest)
	KindResponse Kind = Kind(kindResponse)
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}
