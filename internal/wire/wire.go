// Package wire implements the binary framing protocol used between a
// camelotd broker and its clients.
//
// A frame on the wire is:
//
//	+--------+------------------+--------------------------+
//	| start  | length (u32 BE)  |   payload (length bytes)  |
//	+--------+------------------+--------------------------+
//
// start is 0x00 for a Request-shaped frame (Request, or a Callback
// carried as a Request) and 0x01 for a Response-shaped frame. length is
// the byte length of payload only. payload is three sections separated
// by the single byte Separator:
//
//	Request payload:  Head SEP Action SEP Body
//	Response payload: Head SEP Status SEP Body
//
// Head is major(u16 BE) patch(u16 BE) caller(UTF-8, extends to next SEP).
// Action is type(u8) module ':' id (UTF-8, first ':' is the namespace
// separator). Status is a single signed byte. Body is raw bytes; since
// the payload length is already known from the length prefix, splitting
// on Separator is only ever applied ahead of the body section, so a SEP
// byte inside Body is never misread as a section boundary.
package wire

// Separator delimits the three payload sections of a frame.
const Separator = 0x1F

const (
	kindRequest  byte = 0x00
	kindResponse byte = 0x01
)

// Version is the two-part protocol version carried in every Head.
type Version struct {
	Major uint16
	Patch uint16
}

// CurrentVersion is the protocol version this package implements.
func CurrentVersion() Version {
	return Version{Major: 1, Patch: 0}
}

// Head identifies the originator of a frame: the client name on inbound
// frames, the broker-assigned origin on outbound ones.
type Head struct {
	Version Version
	Caller  string
}

// NewHead builds a Head at the broker's current version.
func NewHead(caller string) Head {
	return Head{Version: CurrentVersion(), Caller: caller}
}

// ActionType enumerates the wire-stable action codes.
type ActionType uint8

const (
	ActionConnect  ActionType = 0
	ActionListen   ActionType = 1
	ActionInvoke   ActionType = 2
	ActionCreate   ActionType = 3
	ActionLeave    ActionType = 4
	ActionCallback ActionType = 5
)

// Valid reports whether t is one of the enumerated action codes.
func (t ActionType) Valid() bool {
	switch t {
	case ActionConnect, ActionListen, ActionInvoke, ActionCreate, ActionLeave, ActionCallback:
		return true
	default:
		return false
	}
}

func (t ActionType) String() string {
	switch t {
	case ActionConnect:
		return "Connect"
	case ActionListen:
		return "Listen"
	case ActionInvoke:
		return "Invoke"
	case ActionCreate:
		return "Create"
	case ActionLeave:
		return "Leave"
	case ActionCallback:
		return "Callback"
	default:
		return "Unknown"
	}
}

// Action names the operation and the event it targets.
type Action struct {
	Type   ActionType
	Module string
	ID     string
}

// NewAction builds an Action for the given module/id pair.
func NewAction(t ActionType, module, id string) Action {
	return Action{Type: t, Module: module, ID: id}
}

// EventName returns the canonical "module:id" event name.
func (a Action) EventName() string {
	return a.Module + ":" + a.ID
}

// StatusType enumerates the wire-stable response status codes.
//
// Zero is success, negative values are unrecoverable (session-fatal at
// the caller's discretion), positive values are recoverable warnings.
type StatusType int8

const (
	StatusOK                  StatusType = 0
	StatusGenericError        StatusType = -1
	StatusNeedConnection      StatusType = -2
	StatusInternalServerError StatusType = -3
	StatusAlreadyConnected    StatusType = 1
	StatusInvalidRequest      StatusType = 2
	StatusEventNotFound       StatusType = 3
	StatusListenerNotFound    StatusType = 4
	StatusEventAlreadyExists  StatusType = 5
	StatusAlreadySubscribed   StatusType = 6
)

func (s StatusType) valid() bool {
	switch s {
	case StatusOK, StatusGenericError, StatusNeedConnection, StatusInternalServerError,
		StatusAlreadyConnected, StatusInvalidRequest, StatusEventNotFound,
		StatusListenerNotFound, StatusEventAlreadyExists, StatusAlreadySubscribed:
		return true
	default:
		return false
	}
}

func (s StatusType) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusGenericError:
		return "GenericError"
	case StatusNeedConnection:
		return "NeedConnection"
	case StatusInternalServerError:
		return "InternalServerError"
	case StatusAlreadyConnected:
		return "AlreadyConnected"
	case StatusInvalidRequest:
		return "InvalidRequest"
	case StatusEventNotFound:
		return "EventNotFound"
	case StatusListenerNotFound:
		return "ListenerNotFound"
	case StatusEventAlreadyExists:
		return "EventAlreadyExists"
	case StatusAlreadySubscribed:
		return "AlreadySubscribed"
	default:
		return "Unknown"
	}
}

// Status wraps a single StatusType for a Response.
type Status struct {
	Type StatusType
}

// NewStatus builds a Status of the given type.
func NewStatus(t StatusType) Status {
	return Status{Type: t}
}
