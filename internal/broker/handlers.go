package broker

import (
	"github.com/trt-pos/camelotd/internal/registry"
	"github.com/trt-pos/camelotd/internal/wire"
)

// handleCreate implements Create: reject if the event already
// exists, else insert an empty subscriber list.
func (d *Dispatcher) handleCreate(req wire.Request) wire.Response {
	eventName := req.Action.EventName()

	switch d.events.Create(eventName) {
	case registry.CreateOK:
		return wire.NewOKResponse(req.Head.Caller)
	default:
		return statusResponse(req.Head.Caller, wire.StatusEventAlreadyExists)
	}
}

// handleListen implements Listen: append the caller to the
// event's subscriber list, rejecting an absent event or a duplicate
// subscription.
func (d *Dispatcher) handleListen(req wire.Request) wire.Response {
	eventName := req.Action.EventName()
	caller := req.Head.Caller

	switch d.events.Subscribe(eventName, caller) {
	case registry.SubscribeOK:
		return wire.NewOKResponse(caller)
	case registry.SubscribeEventNotFound:
		return statusResponse(caller, wire.StatusEventNotFound)
	case registry.SubscribeAlreadySubscribed:
		return statusResponse(caller, wire.StatusAlreadySubscribed)
	default:
		return statusResponse(caller, wire.StatusInternalServerError)
	}
}

// handleLeave implements Leave. The membership check and the
// removal are deliberately two registry calls (a Snapshot then an
// Unsubscribe) mirroring the original implementation's read-lock-then-
// write-lock shape; under this registry's single-critical-section
// Unsubscribe, the event cannot actually vanish between the two calls,
// but the InternalServerError fallback is kept for parity with the
// original and in case a future feature (e.g. event expiry) reintroduces
// the race.
func (d *Dispatcher) handleLeave(req wire.Request) wire.Response {
	eventName := req.Action.EventName()
	caller := req.Head.Caller

	listeners, ok := d.events.Snapshot(eventName)
	if !ok {
		return statusResponse(caller, wire.StatusEventNotFound)
	}

	present := false
	for _, l := range listeners {
		if l == caller {
			present = true
			break
		}
	}
	if !present {
		return statusResponse(caller, wire.StatusListenerNotFound)
	}

	switch d.events.Unsubscribe(eventName, caller) {
	case registry.UnsubscribeOK:
		return wire.NewOKResponse(caller)
	default:
		d.log.WithField("event", eventName).Warn("event state changed between leave check and mutation")
		return statusResponse(caller, wire.StatusInternalServerError)
	}
}

// handleInvoke implements Invoke: snapshot the subscriber list,
// fan a Callback-carrying Request out to each one, then acknowledge the
// invoker. Per-subscriber delivery failures are logged and skipped —
// they never fail the Invoke itself.
func (d *Dispatcher) handleInvoke(req wire.Request) wire.Response {
	eventName := req.Action.EventName()
	caller := req.Head.Caller

	listeners, ok := d.events.Snapshot(eventName)
	if !ok {
		return statusResponse(caller, wire.StatusEventNotFound)
	}

	callback := wire.NewRequest(
		caller,
		wire.NewAction(wire.ActionCallback, req.Action.Module, req.Action.ID),
		req.Body,
	)
	frame, err := callback.Encode()
	if err != nil {
		d.log.WithError(err).WithField("event", eventName).Error("failed to encode callback frame")
		return statusResponse(caller, wire.StatusInternalServerError)
	}

	for _, name := range listeners {
		client, ok := d.clients.Lookup(name)
		if !ok {
			d.log.WithFields(loggerFields(name, eventName)).Warn("subscriber not found in client registry, skipping")
			continue
		}
		if err := client.WriteFrame(frame); err != nil {
			d.log.WithError(err).WithFields(loggerFields(name, eventName)).Warn("failed to deliver callback, skipping")
			continue
		}
	}

	return wire.NewOKResponse(caller)
}

func loggerFields(subscriber, event string) map[string]any {
	return map[string]any{"subscriber": subscriber, "event": event}
}

// rejectConnect handles a Connect arriving on an already-persistent
// channel: always AlreadyConnected.
func (d *Dispatcher) rejectConnect(req wire.Request) wire.Response {
	return statusResponse(req.Head.Caller, wire.StatusAlreadyConnected)
}

// rejectCallback handles a Callback arriving from a client: the
// broker only ever emits Callbacks, never accepts them.
func (d *Dispatcher) rejectCallback(req wire.Request) wire.Response {
	return wire.NewResponse(
		req.Head.Caller,
		wire.NewStatus(wire.StatusInvalidRequest),
		[]byte("server doesn't handle callbacks; clients receive them when someone invokes an event they listen on"),
	)
}
