package logsink

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/oakview/oakbridge/internal/monitoring"
)

// Config holds configuration for the log sink gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g. "localhost:9877").
	ListenAddr string

	// StatsInterval is how often throughput stats are logged.
	StatsInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "localhost:9877",
		StatsInterval: 5 * time.Second,
	}
}

// Publisher owns the gRPC server and fans log entries out to subscribed
// clients. Publish never blocks: the shared queue and the per-client queues
// both drop on overflow, because the callers are camera frame callbacks.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	entryChan chan *Entry
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	entryCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedCount  atomic.Uint64
	lastStatsTime time.Time
	lastStatsSeen uint64
	lastStatsMu   sync.Mutex

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id       string
	prefixes []string
	entryCh  chan *Entry
	doneCh   chan struct{}
}

// wants reports whether the client's prefix filter matches the entry path.
func (c *clientStream) wants(path string) bool {
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// NewPublisher creates a publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 5 * time.Second
	}
	return &Publisher{
		config:    cfg,
		entryChan: make(chan *Entry, 256),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener and starts serving the Subscribe stream.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	// Depth rasters and point clouds push entries past the 4MB default.
	const maxMsgSize = 32 * 1024 * 1024
	p.server = grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	p.server.RegisterService(&serviceDesc, &sinkServer{publisher: p})

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[LogSink] gRPC server listening on %s", p.config.ListenAddr)
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[LogSink] gRPC server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, for tests that listen on :0.
func (p *Publisher) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop gracefully stops the server and the broadcast loop.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
	log.Printf("[LogSink] stopped")
}

// Publish queues one entry for broadcast. Entries are dropped when the
// queue is full.
func (p *Publisher) Publish(e *Entry) {
	if !p.running.Load() || e == nil {
		return
	}

	select {
	case p.entryChan <- e:
		count := p.entryCount.Add(1)
		p.logPeriodicStats(count)
	default:
		dropped := p.droppedCount.Add(1)
		if dropped%100 == 1 {
			monitoring.Logf("[LogSink] dropped entry %s seq=%d (total dropped: %d), queue full",
				e.Path, e.Seq, dropped)
		}
	}
}

func (p *Publisher) logPeriodicStats(count uint64) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastStatsSeen = count
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed < p.config.StatsInterval {
		return
	}
	rate := float64(count-p.lastStatsSeen) / elapsed.Seconds()
	monitoring.Logf("[LogSink] Stats: entries/s=%.1f total=%d dropped=%d clients=%d queue=%d/%d",
		rate, count, p.droppedCount.Load(), p.clientCount.Load(),
		len(p.entryChan), cap(p.entryChan))
	p.lastStatsTime = now
	p.lastStatsSeen = count
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case e := <-p.entryChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				if !client.wants(e.Path) {
					continue
				}
				select {
				case client.entryCh <- e:
				default:
					// Slow client, drop for this client only.
					p.droppedCount.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(id string, req *StreamRequest) *clientStream {
	client := &clientStream{
		id:       id,
		prefixes: req.PathPrefixes,
		entryCh:  make(chan *Entry, 32),
		doneCh:   make(chan struct{}),
	}

	p.clientsMu.Lock()
	p.clients[id] = client
	p.clientsMu.Unlock()

	p.clientCount.Add(1)
	log.Printf("[LogSink] client connected: %s %q (total: %d)", id, req.ClientName, p.clientCount.Load())
	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	client, ok := p.clients[id]
	if ok {
		close(client.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if ok {
		p.clientCount.Add(-1)
		log.Printf("[LogSink] client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	}
}

// Stats is a snapshot of publisher throughput counters.
type Stats struct {
	EntryCount   uint64
	DroppedCount uint64
	ClientCount  int32
	QueueDepth   int
	Running      bool
}

// StatsSnapshot returns current counters. Safe from any goroutine.
func (p *Publisher) StatsSnapshot() Stats {
	return Stats{
		EntryCount:   p.entryCount.Load(),
		DroppedCount: p.droppedCount.Load(),
		ClientCount:  p.clientCount.Load(),
		QueueDepth:   len(p.entryChan),
		Running:      p.running.Load(),
	}
}
