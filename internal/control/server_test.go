package control

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/crosslabs/camhub/internal/broker"
	"github.com/crosslabs/camhub/internal/config"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/ptz"
	"github.com/crosslabs/camhub/internal/snapshot"
	"github.com/crosslabs/camhub/internal/source"
)

type stubCommander struct {
	err error
}

func (c *stubCommander) Do(context.Context, config.Camera, ptz.Command) error {
	return c.err
}

type stubSource struct{}

func (s *stubSource) ReadFrame() ([]byte, error) { return []byte("\xff\xd8jpeg"), nil }
func (s *stubSource) Close() error               { return nil }

type stubOpener struct {
	err error
}

func (o *stubOpener) Open(context.Context, config.Camera) (source.Source, error) {
	if o.err != nil {
		return nil, o.err
	}
	return &stubSource{}, nil
}

type fixture struct {
	handler *Handler
	locks   *broker.LockTable
}

func newFixture(t *testing.T, upstreamErr error) *fixture {
	t.Helper()

	inv := inventory.NewStore([]config.Camera{
		{ID: "cam1", Host: "192.0.2.1", Username: "admin", Password: "pw", StreamURL: "http://192.0.2.1/mjpeg"},
		{ID: "cam7", Host: "192.0.2.7", Username: "admin", Password: "pw", StreamURL: "http://192.0.2.7/mjpeg"},
	})
	locks := broker.NewLockTable()
	opener := &stubOpener{}

	return &fixture{
		locks: locks,
		handler: &Handler{
			Locks:     locks,
			Relay:     broker.NewRelay(locks, inv, &stubCommander{err: upstreamErr}),
			Inventory: inv,
			Snapshots: snapshot.NewService(opener, inv, t.TempDir()),
		},
	}
}

func startServer(t *testing.T, fx *fixture) *Server {
	t.Helper()

	srv := NewServer("127.0.0.1:0", fx.handler)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(frame string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(frame + "\r\n")); err != nil {
		c.t.Fatalf("send %q failed: %v", frame, err)
	}
}

func (c *testClient) recv() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("recv failed: %v", err)
	}
	return strings.TrimSpace(line)
}

func (c *testClient) roundTrip(frame string) string {
	c.send(frame)
	return c.recv()
}

// expectEOF asserts the server closed the connection
func (c *testClient) expectEOF() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.r.ReadString('\n'); err == nil {
		c.t.Fatal("expected connection to be closed")
	}
}

func waitUnlocked(t *testing.T, locks *broker.LockTable, camID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, locked := locks.Owner(camID); !locked {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("camera %s still locked after disconnect", camID)
}

// Two operators contend for one camera: the owner steers it, the
// contender is refused until the owner disconnects.
func TestServer_ExclusiveControl(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)

	x := dial(t, srv)
	y := dial(t, srv)

	if got := x.roundTrip("$REQUEST_CAM,cam7#"); got != "$ACK_CAM,cam7#" {
		t.Fatalf("X acquire = %q, want $ACK_CAM,cam7#", got)
	}
	if got := y.roundTrip("$REQUEST_CAM,cam7#"); got != "$NACK_CAM,cam7#" {
		t.Fatalf("Y acquire = %q, want $NACK_CAM,cam7#", got)
	}

	if got := x.roundTrip("$PTZ,cam7,Left#"); got != "$ACK_PTZ,cam7,Left#" {
		t.Fatalf("X directive = %q, want $ACK_PTZ,cam7,Left#", got)
	}
	if got := y.roundTrip("$PTZ,cam7,Left#"); got != "$UNAUTHORIZED,cam7#" {
		t.Fatalf("Y directive = %q, want $UNAUTHORIZED,cam7#", got)
	}

	// X disconnects; its lock is force-released and Y can take over
	x.conn.Close()
	waitUnlocked(t, fx.locks, "cam7")

	if got := y.roundTrip("$REQUEST_CAM,cam7#"); got != "$ACK_CAM,cam7#" {
		t.Fatalf("Y acquire after X left = %q, want $ACK_CAM,cam7#", got)
	}
}

func TestServer_RequestResponseOrdering(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	// Pipeline several requests; responses must come back in order
	c.send("$REQUEST_CAM,cam1#")
	c.send("$REQUEST_CAM,cam7#")
	c.send("$PTZ,cam1,Up,start,3#")
	c.send("$RELEASE_CAM,cam1#")

	want := []string{
		"$ACK_CAM,cam1#",
		"$ACK_CAM,cam7#",
		"$ACK_PTZ,cam1,Up#",
		"$ACK_REL,cam1#",
	}
	for i, w := range want {
		if got := c.recv(); got != w {
			t.Fatalf("response %d = %q, want %q", i, got, w)
		}
	}
}

func TestServer_ReleaseSemantics(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	// Releasing an unheld camera is refused
	if got := c.roundTrip("$RELEASE_CAM,cam1#"); got != "$UNAUTHORIZED,cam1#" {
		t.Fatalf("release unheld = %q, want $UNAUTHORIZED,cam1#", got)
	}

	c.roundTrip("$REQUEST_CAM,cam1#")
	if got := c.roundTrip("$RELEASE_CAM,cam1#"); got != "$ACK_REL,cam1#" {
		t.Fatalf("release held = %q, want $ACK_REL,cam1#", got)
	}

	// A directive after release is unauthorized again
	if got := c.roundTrip("$PTZ,cam1,Left#"); got != "$UNAUTHORIZED,cam1#" {
		t.Fatalf("directive after release = %q, want $UNAUTHORIZED,cam1#", got)
	}
}

func TestServer_UnknownCameraAndBadDirective(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	if got := c.roundTrip("$REQUEST_CAM,cam99#"); got != "$ERR,cam99,unknown_camera#" {
		t.Fatalf("unknown camera = %q", got)
	}

	c.roundTrip("$REQUEST_CAM,cam1#")
	if got := c.roundTrip("$PTZ,cam1,Sideways#"); got != "$ERR,cam1,bad_directive#" {
		t.Fatalf("bad code = %q, want $ERR,cam1,bad_directive#", got)
	}
	if got := c.roundTrip("$PTZ,cam1,Left,start,99#"); got != "$ERR,cam1,bad_directive#" {
		t.Fatalf("bad speed = %q, want $ERR,cam1,bad_directive#", got)
	}

	// The session survives bad directives
	if got := c.roundTrip("$PTZ,cam1,Left#"); got != "$ACK_PTZ,cam1,Left#" {
		t.Fatalf("good directive after bad = %q", got)
	}
}

func TestServer_UpstreamFailureSurfaces(t *testing.T) {
	fx := newFixture(t, errors.New("connection refused"))
	srv := startServer(t, fx)
	c := dial(t, srv)

	c.roundTrip("$REQUEST_CAM,cam1#")
	if got := c.roundTrip("$PTZ,cam1,Left#"); got != "$ERR,cam1,upstream_failure#" {
		t.Fatalf("upstream failure = %q, want $ERR,cam1,upstream_failure#", got)
	}

	// The lock is intact; the operator may simply resend
	if !fx.locks.IsOwner("cam1", mustOwner(t, fx.locks, "cam1")) {
		t.Error("lock should survive upstream failure")
	}
}

func mustOwner(t *testing.T, locks *broker.LockTable, camID string) string {
	t.Helper()
	owner, ok := locks.Owner(camID)
	if !ok {
		t.Fatalf("camera %s is not locked", camID)
	}
	return owner
}

func TestServer_MalformedFrameClosesSession(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	c.roundTrip("$REQUEST_CAM,cam1#")

	c.send("this is not a frame")
	if got := c.recv(); got != "$ERR,,malformed#" {
		t.Fatalf("malformed response = %q, want $ERR,,malformed#", got)
	}
	c.expectEOF()

	// Cleanup ran: the lock is gone
	waitUnlocked(t, fx.locks, "cam1")
}

func TestServer_SnapRequiresLock(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	if got := c.roundTrip("$SNAP,cam1#"); got != "$UNAUTHORIZED,cam1#" {
		t.Fatalf("snap without lock = %q, want $UNAUTHORIZED,cam1#", got)
	}

	c.roundTrip("$REQUEST_CAM,cam1#")
	if got := c.roundTrip("$SNAP,cam1#"); got != "$ACK_SNAP,cam1#" {
		t.Fatalf("snap with lock = %q, want $ACK_SNAP,cam1#", got)
	}
}

func TestServer_QuitReleasesLocks(t *testing.T) {
	fx := newFixture(t, nil)
	srv := startServer(t, fx)
	c := dial(t, srv)

	c.roundTrip("$REQUEST_CAM,cam1#")
	c.roundTrip("$REQUEST_CAM,cam7#")

	if got := c.roundTrip("$QUIT#"); got != "$BYE#" {
		t.Fatalf("quit = %q, want $BYE#", got)
	}
	c.expectEOF()

	waitUnlocked(t, fx.locks, "cam1")
	waitUnlocked(t, fx.locks, "cam7")
}
