package broker

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/trt-pos/camelotd/internal/transport"
	"github.com/trt-pos/camelotd/internal/wire"
)

// testClient drives one simulated client end-to-end against a Server's
// handleConn, running on the opposite end of a net.Pipe.
type testClient struct {
	t     *testing.T
	read  *transport.ReadHalf
	write *transport.WriteHalf
}

func dialTestServer(t *testing.T, s *Server) *testClient {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go s.handleConn(serverConn)
	t.Cleanup(func() { _ = clientConn.Close() })

	read, write := transport.Split(clientConn)
	return &testClient{t: t, read: read, write: write}
}

func (c *testClient) send(req wire.Request) {
	c.t.Helper()
	frame, err := req.Encode()
	require.NoError(c.t, err)
	require.NoError(c.t, c.write.WriteFrame(frame))
}

func (c *testClient) recvResponse() wire.Response {
	c.t.Helper()
	kind, payload, err := c.read.ReadFrame()
	require.NoError(c.t, err)
	require.Equal(c.t, wire.KindResponse, kind)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(c.t, err)
	return resp
}

func newTestServer() *Server {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(log)
}

func TestScenario1_HandshakeOK(t *testing.T) {
	s := newTestServer()
	c := dialTestServer(t, s)

	c.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionConnect, "", ""), nil))
	kind, payload, err := c.read.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.KindResponse, kind)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status.Type)
	require.Equal(t, "merlin", resp.Head.Caller)

	time.Sleep(10 * time.Millisecond)
	require.True(t, s.Clients.Contains("merlin"))
}

func TestScenario2_DuplicateConnectRejected(t *testing.T) {
	s := newTestServer()

	first := dialTestServer(t, s)
	first.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionConnect, "", ""), nil))
	_, _, err := first.read.ReadFrame()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	second := dialTestServer(t, s)
	second.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionConnect, "", ""), nil))
	kind, payload, err := second.read.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.KindResponse, kind)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusAlreadyConnected, resp.Status.Type)
	require.Equal(t, "merlin", resp.Head.Caller)
}

func TestScenario3_CreateAsHandshakeNeedsConnection(t *testing.T) {
	s := newTestServer()

	creator := dialTestServer(t, s)
	creator.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionCreate, "weather", "london"), nil))
	resp := creator.recvResponse()
	require.Equal(t, wire.StatusNeedConnection, resp.Status.Type)
}

func TestScenario3_FullCreateListenInvokeFlow(t *testing.T) {
	s := newTestServer()

	subscriber := dialTestServer(t, s)
	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionConnect, "", ""), nil))
	okResp := subscriber.recvResponse()
	require.Equal(t, wire.StatusOK, okResp.Status.Type)

	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionCreate, "weather", "london"), nil))
	createResp := subscriber.recvResponse()
	require.Equal(t, wire.StatusOK, createResp.Status.Type)

	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionListen, "weather", "london"), nil))
	listenResp := subscriber.recvResponse()
	require.Equal(t, wire.StatusOK, listenResp.Status.Type)

	invoker := dialTestServer(t, s)
	invoker.send(wire.NewRequest("invoker", wire.NewAction(wire.ActionInvoke, "weather", "london"), []byte("it's raining")))

	// net.Pipe is unbuffered and the broker finishes the fan-out before it
	// replies to the invoker, so the callback is read first.
	kind, payload, err := subscriber.read.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.KindRequest, kind)
	callback, err := wire.DecodeRequestPayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.ActionCallback, callback.Action.Type)
	require.Equal(t, []byte("it's raining"), callback.Body)

	invokeResp := invoker.recvResponse()
	require.Equal(t, wire.StatusOK, invokeResp.Status.Type)
}

func TestScenario4_InvokeUnknownEvent(t *testing.T) {
	s := newTestServer()
	c := dialTestServer(t, s)
	c.send(wire.NewRequest("invoker", wire.NewAction(wire.ActionInvoke, "weather", "atlantis"), nil))

	_, payload, err := c.read.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusEventNotFound, resp.Status.Type)
}

func TestScenario5_ListenThenLeave(t *testing.T) {
	s := newTestServer()
	s.Events.Create("weather:london")

	subscriber := dialTestServer(t, s)
	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionConnect, "", ""), nil))
	_, _, err := subscriber.read.ReadFrame()
	require.NoError(t, err)

	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionListen, "weather", "london"), nil))
	_, payload, err := subscriber.read.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status.Type)

	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionLeave, "weather", "london"), nil))
	_, payload, err = subscriber.read.ReadFrame()
	require.NoError(t, err)
	resp, err = wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status.Type)

	listeners, ok := s.Events.Snapshot("weather:london")
	require.True(t, ok)
	require.Empty(t, listeners)
}

func TestScenario6_FanOutToFourSubscribers(t *testing.T) {
	s := newTestServer()
	s.Events.Create("joust:camelot")

	names := []string{"merlin", "arthur", "lancelot", "guinevere"}
	var subs []*testClient
	for _, name := range names {
		c := dialTestServer(t, s)
		c.send(wire.NewRequest(name, wire.NewAction(wire.ActionConnect, "", ""), nil))
		_, _, err := c.read.ReadFrame()
		require.NoError(t, err)

		c.send(wire.NewRequest(name, wire.NewAction(wire.ActionListen, "joust", "camelot"), nil))
		_, payload, err := c.read.ReadFrame()
		require.NoError(t, err)
		resp, err := wire.DecodeResponsePayload(payload)
		require.NoError(t, err)
		require.Equal(t, wire.StatusOK, resp.Status.Type)
		subs = append(subs, c)
	}

	invoker := dialTestServer(t, s)
	invoker.send(wire.NewRequest("herald", wire.NewAction(wire.ActionInvoke, "joust", "camelot"), []byte("begin")))

	// The broker writes the callbacks in subscription order before it
	// replies to the invoker; net.Pipe is unbuffered, so read them first.
	for _, c := range subs {
		kind, payload, err := c.read.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, wire.KindRequest, kind)
		callback, err := wire.DecodeRequestPayload(payload)
		require.NoError(t, err)
		require.Equal(t, wire.ActionCallback, callback.Action.Type)
		require.Equal(t, []byte("begin"), callback.Body)
	}

	_, payload, err := invoker.read.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status.Type)
}

func TestNonConnectNonInvokeHandshakeRejected(t *testing.T) {
	s := newTestServer()
	c := dialTestServer(t, s)
	c.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionListen, "weather", "london"), nil))

	_, payload, err := c.read.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusNeedConnection, resp.Status.Type)
}

func TestCallbackFromClientRejected(t *testing.T) {
	s := newTestServer()
	c := dialTestServer(t, s)
	c.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionConnect, "", ""), nil))
	_, _, err := c.read.ReadFrame()
	require.NoError(t, err)

	c.send(wire.NewRequest("merlin", wire.NewAction(wire.ActionCallback, "weather", "london"), nil))
	_, payload, err := c.read.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusInvalidRequest, resp.Status.Type)
}

func TestDisconnectDoesNotScrubSubscriberList(t *testing.T) {
	s := newTestServer()
	s.Events.Create("weather:london")

	subscriber := dialTestServer(t, s)
	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionConnect, "", ""), nil))
	_, _, err := subscriber.read.ReadFrame()
	require.NoError(t, err)
	subscriber.send(wire.NewRequest("arthur", wire.NewAction(wire.ActionListen, "weather", "london"), nil))
	_, _, err = subscriber.read.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, subscriber.write.Shutdown())
	time.Sleep(20 * time.Millisecond)

	listeners, ok := s.Events.Snapshot("weather:london")
	require.True(t, ok)
	require.Contains(t, listeners, "arthur")
	require.False(t, s.Clients.Contains("arthur"))
}
