package broker

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trt-pos/camelotd/internal/registry"
	"github.com/trt-pos/camelotd/internal/transport"
	"github.com/trt-pos/camelotd/internal/wire"
)

// DefaultPort is the broker's default listen port.
const DefaultPort = 1237

// Server owns the client and event registries and runs the accept
// loop. Registries are exposed as dependency-injected values rather
// than package-level singletons so tests can build isolated broker
// instances.
type Server struct {
	Clients *registry.ClientRegistry
	Events  *registry.EventRegistry

	dispatcher *Dispatcher
	log        *logrus.Logger
}

// New builds a Server with fresh, empty registries.
func New(log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clients := registry.NewClientRegistry()
	events := registry.NewEventRegistry()
	dispatcher := NewDispatcher(clients, events, logrus.NewEntry(log))
	return &Server{
		Clients:    clients,
		Events:     events,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept
// returns a non-temporary error. Each accepted connection is handled on
// its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.WithError(err).Error("couldn't accept client connection")
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				continue
			}
			return err
		}

		go s.handleConn(conn)
	}
}

// ListenAndServe binds 127.0.0.1:port and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", addrFor(port))
	if err != nil {
		return err
	}
	defer ln.Close()

	s.log.WithField("port", port).Info("camelotd initialized")
	return s.Serve(ctx, ln)
}

func addrFor(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}

// handleConn implements the handshake and, for persistent connections,
// the read loop. It owns the connection end to end: by the time
// it returns, the socket has been shut down and (if it ever joined the
// client registry) removed.
func (s *Server) handleConn(conn net.Conn) {
	read, write := transport.Split(conn)
	connID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"remote_addr": conn.RemoteAddr().String(),
		"conn_id":     connID,
	})
	log.Info("tcp connection accepted")

	kind, payload, err := read.ReadFrame()
	if err != nil {
		log.WithError(err).Warn("handshake read failed")
		_ = conn.Close()
		return
	}
	if kind != wire.KindRequest {
		log.Warn("handshake frame was not request-shaped, closing")
		_ = conn.Close()
		return
	}

	req, err := wire.DecodeRequestPayload(payload)
	if err != nil {
		log.WithError(err).Warn("malformed handshake frame, closing")
		_ = conn.Close()
		return
	}
	if req.Head.Version.Major != wire.CurrentVersion().Major {
		log.WithField("client_major_version", req.Head.Version.Major).
			Warn("protocol major version mismatch on handshake, closing")
		_ = conn.Close()
		return
	}

	switch req.Action.Type {
	case wire.ActionConnect:
		s.handleHandshakeConnect(req, read, write, log)
	case wire.ActionInvoke:
		s.handleOneShotInvoke(req, write, log)
		_ = conn.Close()
	default:
		log.WithField("action", req.Action.Type.String()).
			Info("rejecting non-persistent action without a connection")
		s.writeFinal(write, statusResponse(req.Head.Caller, wire.StatusNeedConnection), log)
		_ = conn.Close()
	}
}

func (s *Server) handleHandshakeConnect(req wire.Request, read *transport.ReadHalf, write *transport.WriteHalf, log *logrus.Entry) {
	name := req.Head.Caller
	client, inserted := s.Clients.TryInsert(name, write)
	if !inserted {
		log.WithField("client", name).Info("rejecting connect: name already in use")
		s.writeFinal(write, statusResponse(name, wire.StatusAlreadyConnected), log)
		_ = write.Shutdown()
		return
	}

	resp := wire.NewOKResponse(name)
	frame, err := resp.Encode()
	if err != nil {
		log.WithError(err).Error("failed to encode connect response")
		s.Clients.Remove(name)
		_ = client.Shutdown()
		return
	}
	if err := client.WriteFrame(frame); err != nil {
		log.WithError(err).Warn("failed to write connect response")
		s.Clients.Remove(name)
		_ = client.Shutdown()
		return
	}

	log = log.WithField("client", name)
	log.Info("persistent connection established")
	s.readLoop(read, client, log)
}

// handleOneShotInvoke services a fire-and-forget invoker: the
// invoker never joins the client registry, it only gets a Response.
func (s *Server) handleOneShotInvoke(req wire.Request, write *transport.WriteHalf, log *logrus.Entry) {
	resp, err := s.dispatcher.Dispatch(req)
	if err != nil {
		log.WithError(err).Warn("protocol error servicing one-shot invoke")
		return
	}
	s.writeFinal(write, resp, log)
}

func (s *Server) writeFinal(write *transport.WriteHalf, resp wire.Response, log *logrus.Entry) {
	frame, err := resp.Encode()
	if err != nil {
		log.WithError(err).Error("failed to encode response")
		return
	}
	if err := write.WriteFrame(frame); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// readLoop is the persistent per-client read loop: read frames
// until an error, dispatch each to a Response, write it back. Any read
// or write error against the caller is session-fatal: shut the write
// half down and remove the client from the registry.
func (s *Server) readLoop(read *transport.ReadHalf, client *registry.Client, log *logrus.Entry) {
	for {
		kind, payload, err := read.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) {
				log.Info("client disconnected")
			} else {
				log.WithError(err).Warn("read error, disconnecting client")
			}
			s.teardown(client, log)
			return
		}

		if kind != wire.KindRequest {
			log.Warn("unexpected response-shaped frame from client, terminating session")
			s.teardown(client, log)
			return
		}

		req, err := wire.DecodeRequestPayload(payload)
		if err != nil {
			log.WithError(err).Warn("malformed frame, terminating session")
			s.teardown(client, log)
			return
		}

		resp, err := s.dispatcher.Dispatch(req)
		if err != nil {
			log.WithError(err).Warn("protocol version mismatch, terminating session")
			s.teardown(client, log)
			return
		}

		frame, err := resp.Encode()
		if err != nil {
			log.WithError(err).Error("failed to encode response, terminating session")
			s.teardown(client, log)
			return
		}

		if err := client.WriteFrame(frame); err != nil {
			log.WithError(err).Warn("write error, terminating session")
			s.teardown(client, log)
			return
		}
	}
}

func (s *Server) teardown(client *registry.Client, log *logrus.Entry) {
	_ = client.Shutdown()
	s.Clients.Remove(client.Name)
	log.Info("client removed from registry")
}
