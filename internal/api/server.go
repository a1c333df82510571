// Package api serves the frontend-facing websocket control protocol plus
// the backend's debug HTTP surface. Each websocket message is one request
// against the store dispatcher; backend-initiated errors (device loss) are
// pushed to the client between requests.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/oakview/oakbridge/internal/pipeline"
	"github.com/oakview/oakbridge/internal/store"
	"github.com/oakview/oakbridge/internal/topics"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server handles websocket control sessions.
type Server struct {
	disp  *store.Dispatcher
	stats StatsSource

	// dispatchTimeout bounds a single store round trip.
	dispatchTimeout time.Duration
}

// StatsSource supplies throughput samples for the debug chart. The log sink
// publisher's counters feed it; nil disables the chart.
type StatsSource interface {
	Samples() []StatsSample
}

// NewServer creates an API server over the given dispatcher.
func NewServer(disp *store.Dispatcher, stats StatsSource) *Server {
	return &Server{
		disp:            disp,
		stats:           stats,
		dispatchTimeout: 10 * time.Second,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin/debug routes are attached by the
// caller.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/debug/throughput", s.handleThroughputChart)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// handleWS runs one control session. A single frontend connects at a time
// in practice, but nothing here assumes that; the store serializes actions.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The viewer frontend serves from its own origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("[API] websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "handler exited")

	log.Printf("[API] client connected: %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads happen on their own goroutine; the session loop selects over
	// inbound frames, backend notices and shutdown.
	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.resetBackend()
			return

		case err := <-readErr:
			log.Printf("[API] client %s disconnected: %v", r.RemoteAddr, err)
			s.resetBackend()
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case notice := <-s.disp.Notices():
			s.send(ctx, conn, outEnvelope{
				Type: TypeError,
				Data: errorData{Action: notice.Action, Message: notice.Message},
			})

		case data := <-inbound:
			if reply, ok := s.handleMessage(ctx, data); ok {
				s.send(ctx, conn, reply)
			}
		}
	}
}

// resetBackend tears down backend state after the frontend goes away. The
// session context is already dead at this point, so it gets its own.
func (s *Server) resetBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()
	if _, err := s.disp.Dispatch(ctx, store.Request{Action: store.ActionReset}); err != nil {
		log.Printf("[API] couldn't reset backend after websocket disconnect: %v", err)
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, env outEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[API] failed to marshal %s message: %v", env.Type, err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("[API] write failed: %v", err)
	}
}

// handleMessage decodes one inbound frame and executes it. Malformed input
// is logged and ignored; the second return is false when there is nothing
// to send back.
func (s *Server) handleMessage(ctx context.Context, data []byte) (outEnvelope, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[API] failed to parse message: %s", data)
		return outEnvelope{}, false
	}
	if env.Type == "" {
		log.Printf("[API] missing message type")
		return outEnvelope{}, false
	}

	switch env.Type {
	case TypeSubscriptions:
		return s.handleSubscriptions(ctx, env.Data)
	case TypePipeline:
		return s.handlePipeline(ctx, env.Data)
	case TypeDevices:
		return s.handleDevices(ctx)
	case TypeDevice:
		return s.handleDevice(ctx, env.Data)
	default:
		log.Printf("[API] unknown message type: %s", env.Type)
		return outEnvelope{}, false
	}
}

// handleSubscriptions sets the subscription list and replies with the
// active topic names. Unknown topic names are skipped, not fatal: frontend
// versions drift.
func (s *Server) handleSubscriptions(ctx context.Context, data []byte) (outEnvelope, bool) {
	var payload subscriptionsData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[API] bad subscriptions payload: %v", err)
			return outEnvelope{}, false
		}
	}

	subs := make([]topics.Topic, 0, len(payload.Subscriptions))
	for _, name := range payload.Subscriptions {
		topic, err := topics.Parse(name)
		if err != nil {
			log.Printf("[API] skipping unknown topic %q", name)
			continue
		}
		subs = append(subs, topic)
	}

	res, err := s.dispatch(ctx, store.Request{
		Action:        store.ActionSetSubscriptions,
		Subscriptions: subs,
	})
	if err != nil {
		return outEnvelope{}, false
	}

	names := make([]string, 0, len(res.Subscriptions))
	for _, t := range res.Subscriptions {
		names = append(names, t.String())
	}
	return outEnvelope{Type: TypeSubscriptions, Data: names}, true
}

// handlePipeline applies a new pipeline config. Success replies with the
// now-active config; failure replies FullReset because the device manager
// tears down on a failed apply.
func (s *Server) handlePipeline(ctx context.Context, data []byte) (outEnvelope, bool) {
	var payload pipelineData
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[API] bad pipeline payload: %v", err)
		return outEnvelope{}, false
	}

	cfg := pipeline.Default()
	if len(payload.Pipeline) > 0 {
		cfg = &pipeline.Config{}
		if err := json.Unmarshal(payload.Pipeline, cfg); err != nil {
			log.Printf("[API] bad pipeline config: %v", err)
			return outEnvelope{}, false
		}
	}

	res, err := s.dispatch(ctx, store.Request{
		Action:   store.ActionUpdatePipeline,
		Pipeline: cfg,
	})
	if err != nil {
		return outEnvelope{}, false
	}
	if !res.OK {
		return outEnvelope{
			Type: TypeError,
			Data: errorData{Action: store.NoticeFullReset, Message: res.Message},
		}, true
	}
	return outEnvelope{Type: TypePipeline, Data: res.Pipeline}, true
}

func (s *Server) handleDevices(ctx context.Context) (outEnvelope, bool) {
	res, err := s.dispatch(ctx, store.Request{Action: store.ActionGetAvailableDevices})
	if err != nil {
		return outEnvelope{}, false
	}
	return outEnvelope{Type: TypeDevices, Data: res.Devices}, true
}

func (s *Server) handleDevice(ctx context.Context, data []byte) (outEnvelope, bool) {
	var payload deviceData
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[API] bad device payload: %v", err)
		return outEnvelope{}, false
	}
	if payload.Device.ID == nil {
		log.Printf("[API] missing device id")
		return outEnvelope{}, false
	}

	res, err := s.dispatch(ctx, store.Request{
		Action:   store.ActionSelectDevice,
		DeviceID: *payload.Device.ID,
	})
	if err != nil {
		return outEnvelope{}, false
	}
	if !res.OK {
		return outEnvelope{
			Type: TypeError,
			Data: errorData{Action: store.NoticeFullReset, Message: res.Message},
		}, true
	}
	return outEnvelope{Type: TypeDevice, Data: res.Properties}, true
}

func (s *Server) dispatch(ctx context.Context, req store.Request) (store.Result, error) {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	res, err := s.disp.Dispatch(dctx, req)
	if err != nil {
		log.Printf("[API] dispatch %s failed: %v", req.Action, err)
	}
	return res, err
}
