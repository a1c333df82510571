package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/store"
)

// testBackend is a store + runner wired with scriptable callbacks.
type testBackend struct {
	store      *store.Store
	disp       *store.Dispatcher
	resetCount chan struct{}
	cancel     context.CancelFunc
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		store:      store.New(),
		disp:       store.NewDispatcher(),
		resetCount: make(chan struct{}, 8),
	}
	b.store.OnListDevices = func() []string { return []string{"mxid-1", "mxid-2"} }
	b.store.OnSelectDevice = func(id string) (bool, string, *device.Properties) {
		if id == "mxid-1" || id == "" {
			return true, "Device selected successfully", &device.Properties{ID: id}
		}
		return false, "Failed to select device", nil
	}
	b.store.OnUpdatePipeline = func() (bool, string) { return true, "Pipeline started" }
	b.store.OnReset = func() (bool, string) {
		select {
		case b.resetCount <- struct{}{}:
		default:
		}
		return true, "Reset successful"
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	runner := store.NewRunner(b.store, b.disp, nil)
	go runner.Run(ctx)
	t.Cleanup(cancel)
	return b
}

func dialTestServer(t *testing.T, b *testBackend) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(NewServer(b.disp, nil).ServeMux())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, msg string) (string, json.RawMessage) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad reply %s: %v", data, err)
	}
	return env.Type, env.Data
}

func TestSubscriptionsRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn,
		`{"type":"Subscriptions","data":{"Subscriptions":["ColorImage","ImuData","NotATopic"]}}`)
	if typ != TypeSubscriptions {
		t.Fatalf("reply type = %q", typ)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		t.Fatal(err)
	}
	// The unknown topic is skipped, the rest are active.
	if len(names) != 2 || names[0] != "ColorImage" || names[1] != "ImuData" {
		t.Errorf("active subscriptions = %v", names)
	}
}

func TestDevicesRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn, `{"type":"Devices","data":{}}`)
	if typ != TypeDevices {
		t.Fatalf("reply type = %q", typ)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "mxid-1" {
		t.Errorf("device ids = %v", ids)
	}
}

func TestDeviceSelectRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn, `{"type":"Device","data":{"Device":{"id":"mxid-1"}}}`)
	if typ != TypeDevice {
		t.Fatalf("reply type = %q, data=%s", typ, data)
	}
	var props device.Properties
	if err := json.Unmarshal(data, &props); err != nil {
		t.Fatal(err)
	}
	if props.ID != "mxid-1" {
		t.Errorf("properties id = %q", props.ID)
	}
}

func TestDeviceSelectFailureRepliesFullReset(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn, `{"type":"Device","data":{"Device":{"id":"nope"}}}`)
	if typ != TypeError {
		t.Fatalf("reply type = %q", typ)
	}
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Action != store.NoticeFullReset {
		t.Errorf("error action = %q", e.Action)
	}
	if e.Message != "Failed to select device" {
		t.Errorf("error message = %q", e.Message)
	}
}

func TestPipelineRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn,
		`{"type":"Pipeline","data":{"Pipeline":{"color_camera":{"fps":15,"resolution":"THE_1080_P","board_socket":"RGB"}}}}`)
	if typ != TypePipeline {
		t.Fatalf("reply type = %q, data=%s", typ, data)
	}
	if !strings.Contains(string(data), `"fps":15`) {
		t.Errorf("active config missing fps: %s", data)
	}
}

func TestPipelineFailureRepliesFullReset(t *testing.T) {
	b := newTestBackend(t)
	b.store.OnUpdatePipeline = func() (bool, string) { return false, "Couldn't start pipeline" }
	conn, ctx := dialTestServer(t, b)

	typ, data := roundTrip(t, ctx, conn, `{"type":"Pipeline","data":{"Pipeline":{}}}`)
	if typ != TypeError {
		t.Fatalf("reply type = %q", typ)
	}
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Action != store.NoticeFullReset || e.Message != "Couldn't start pipeline" {
		t.Errorf("error = %+v", e)
	}
}

func TestMalformedMessagesIgnored(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	// None of these should produce a reply; the following Devices request
	// must be answered first in order.
	for _, bad := range []string{
		`not json at all`,
		`{"data":{}}`,
		`{"type":"Bogus","data":{}}`,
		`{"type":"Device","data":{"Device":{}}}`,
	} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(bad)); err != nil {
			t.Fatal(err)
		}
	}

	typ, _ := roundTrip(t, ctx, conn, `{"type":"Devices","data":{}}`)
	if typ != TypeDevices {
		t.Fatalf("reply type = %q, want Devices", typ)
	}
}

func TestDisconnectResetsBackend(t *testing.T) {
	b := newTestBackend(t)
	conn, _ := dialTestServer(t, b)

	conn.Close(websocket.StatusNormalClosure, "bye")

	select {
	case <-b.resetCount:
	case <-time.After(5 * time.Second):
		t.Fatal("backend not reset after disconnect")
	}
}

func TestNoticePushedToClient(t *testing.T) {
	b := newTestBackend(t)
	conn, ctx := dialTestServer(t, b)

	// Handshake a request first so the session loop is live.
	roundTrip(t, ctx, conn, `{"type":"Devices","data":{}}`)

	b.disp.PushNotice(store.ErrorNotice{
		Action:  store.NoticeFullReset,
		Message: "Device disconnected",
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeError {
		t.Fatalf("pushed type = %q", env.Type)
	}
	var e errorData
	if err := json.Unmarshal(env.Data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Message != "Device disconnected" {
		t.Errorf("pushed message = %q", e.Message)
	}
}

func TestHealthz(t *testing.T) {
	b := newTestBackend(t)
	srv := httptest.NewServer(NewServer(b.disp, nil).ServeMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

type fakeStats struct{ samples []StatsSample }

func (f *fakeStats) Samples() []StatsSample { return f.samples }

func TestThroughputChart(t *testing.T) {
	b := newTestBackend(t)
	stats := &fakeStats{samples: []StatsSample{
		{Timestamp: time.Now().Add(-time.Minute), Entries: 100, Clients: 1},
		{Timestamp: time.Now(), Entries: 250, Dropped: 3, Clients: 1},
	}}
	srv := httptest.NewServer(NewServer(b.disp, stats).ServeMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/throughput")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chart status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
}

func TestThroughputChartNoSource(t *testing.T) {
	b := newTestBackend(t)
	srv := httptest.NewServer(NewServer(b.disp, nil).ServeMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/throughput")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
