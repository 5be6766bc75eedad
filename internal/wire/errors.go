package wire

import "errors"

// Codec error types. Each corresponds to one structural violation of
// the frame layout documented in package wire's doc comment; the last
// two are returned by encode, the rest by decode.
var (
	// ErrInvalidRequest indicates a Request frame's payload did not split
	// into exactly three Separator-delimited sections.
	ErrInvalidRequest = errors.New("wire: invalid request payload")

	// ErrInvalidResponse indicates a Response frame's payload did not
	// split into exactly three Separator-delimited sections.
	ErrInvalidResponse = errors.New("wire: invalid response payload")

	// ErrInvalidHead indicates a malformed or truncated version, or
	// non-UTF-8 caller bytes.
	ErrInvalidHead = errors.New("wire: invalid head")

	// ErrInvalidActionType indicates an action byte outside the
	// enumerated ActionType values.
	ErrInvalidActionType = errors.New("wire: invalid action type")

	// ErrInvalidAction indicates a malformed action section (missing
	// the module:id separator, or non-UTF-8 namespace bytes).
	ErrInvalidAction = errors.New("wire: invalid action")

	// ErrInvalidStatus indicates a status byte outside the enumerated
	// StatusType values.
	ErrInvalidStatus = errors.New("wire: invalid status")

	// ErrWrongKind indicates a frame's start byte did not match the
	// kind the reader expected (Request vs Response).
	ErrWrongKind = errors.New("wire: unexpected frame kind")

	// ErrCallerSeparator indicates a caller string contains the frame
	// separator byte, which would make encode/decode ambiguous.
	ErrCallerSeparator = errors.New("wire: caller contains separator byte")

	// ErrModuleSeparator indicates a module string contains ':', which
	// would make the module/id split ambiguous.
	ErrModuleSeparator = errors.New("wire: module contains ':'")
)
