package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crosslabs/camhub/internal/config"
)

func mjpegTestServer(frames [][]byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, frame := range frames {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprintf(w, "\r\n")
		}
		fmt.Fprintf(w, "--frame--\r\n")
	}))
}

func TestMJPEGOpener_ReadFrames(t *testing.T) {
	frames := [][]byte{[]byte("\xff\xd8first"), []byte("\xff\xd8second")}
	srv := mjpegTestServer(frames)
	defer srv.Close()

	opener := &MJPEGOpener{}
	cam := config.Camera{ID: "cam1", StreamURL: srv.URL, Username: "admin", Password: "pw"}

	src, err := opener.Open(context.Background(), cam)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	for i, want := range frames {
		got, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if string(got) != string(want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}

	// The stream ended: further reads surface source failure
	if _, err := src.ReadFrame(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("ReadFrame after end = %v, want ErrSourceUnavailable", err)
	}
}

func TestMJPEGOpener_BadContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not a stream</html>")
	}))
	defer srv.Close()

	opener := &MJPEGOpener{}
	cam := config.Camera{ID: "cam1", StreamURL: srv.URL}

	if _, err := opener.Open(context.Background(), cam); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Open with html response = %v, want ErrSourceUnavailable", err)
	}
}

func TestMJPEGOpener_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	opener := &MJPEGOpener{}
	cam := config.Camera{ID: "cam1", StreamURL: srv.URL}

	if _, err := opener.Open(context.Background(), cam); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Open with 404 = %v, want ErrSourceUnavailable", err)
	}
}

func TestMJPEGOpener_NoStreamURL(t *testing.T) {
	opener := &MJPEGOpener{}

	if _, err := opener.Open(context.Background(), config.Camera{ID: "cam1"}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Open without stream url = %v, want ErrSourceUnavailable", err)
	}
}

func TestMJPEGOpener_ConnectTimeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	opener := &MJPEGOpener{Timeout: 50 * time.Millisecond}
	cam := config.Camera{ID: "cam1", StreamURL: srv.URL}

	if _, err := opener.Open(context.Background(), cam); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Open against stalled server = %v, want ErrSourceUnavailable", err)
	}
	<-started
}

func TestMJPEGOpener_SlowConnectWithinTimeout(t *testing.T) {
	frames := [][]byte{[]byte("\xff\xd8late")}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, frame := range frames {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprintf(w, "\r\n")
		}
		fmt.Fprintf(w, "--frame--\r\n")
	}))
	defer srv.Close()

	opener := &MJPEGOpener{Timeout: 5 * time.Second}
	cam := config.Camera{ID: "cam1", StreamURL: srv.URL}

	src, err := opener.Open(context.Background(), cam)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	// A connect that finishes under the deadline must hand out a stream
	// that is still readable, not one cancelled behind its back
	got, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame after slow connect = %v", err)
	}
	if string(got) != string(frames[0]) {
		t.Errorf("frame = %q, want %q", got, frames[0])
	}
}

func TestMJPEGOpener_Unreachable(t *testing.T) {
	opener := &MJPEGOpener{}
	cam := config.Camera{ID: "cam1", StreamURL: "http://192.0.2.1:1/mjpeg"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := opener.Open(ctx, cam); err == nil {
		t.Fatal("Open against unreachable host = nil, want error")
	}
}
