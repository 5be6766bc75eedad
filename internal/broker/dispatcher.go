// Package broker implements the request dispatcher, the action
// handlers, and the per-connection lifecycle of the core
// messaging broker.
package broker

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/trt-pos/camelotd/internal/registry"
	"github.com/trt-pos/camelotd/internal/wire"
)

// ErrProtocolVersionMismatch is returned by Dispatch when a frame's
// major version disagrees with wire.CurrentVersion(). It is
// session-fatal: the caller must terminate the connection without
// sending a response.
var ErrProtocolVersionMismatch = errors.New("broker: protocol major version mismatch")

// Dispatcher selects a handler per ActionType, enforces the protocol
// version, and produces a Response.
type Dispatcher struct {
	clients *registry.ClientRegistry
	events  *registry.EventRegistry
	log     *logrus.Entry
}

// NewDispatcher builds a Dispatcher over the given registries.
func NewDispatcher(clients *registry.ClientRegistry, events *registry.EventRegistry, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{clients: clients, events: events, log: log}
}

// Dispatch routes req to its handler. The returned error is non-nil
// only for a session-fatal condition (currently: version mismatch); in
// that case the Response is not meaningful and must not be sent.
func (d *Dispatcher) Dispatch(req wire.Request) (wire.Response, error) {
	if req.Head.Version.Major != wire.CurrentVersion().Major {
		return wire.Response{}, ErrProtocolVersionMismatch
	}

	switch req.Action.Type {
	case wire.ActionCreate:
		return d.handleCreate(req), nil
	case wire.ActionListen:
		return d.handleListen(req), nil
	case wire.ActionLeave:
		return d.handleLeave(req), nil
	case wire.ActionInvoke:
		return d.handleInvoke(req), nil
	case wire.ActionConnect:
		return d.rejectConnect(req), nil
	case wire.ActionCallback:
		return d.rejectCallback(req), nil
	default:
		// Unreachable: wire.DecodeRequestPayload already rejects any
		// ActionType outside the six enumerated values.
		return statusResponse(req.Head.Caller, wire.StatusInternalServerError), nil
	}
}

func statusResponse(caller string, status wire.StatusType) wire.Response {
	return wire.NewResponse(caller, wire.NewStatus(status), nil)
}
