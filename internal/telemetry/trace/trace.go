// Package trace defines the rewrite-trace record schema and an async,
// batched sink that ships records to ClickHouse — the external
// collaborator an engine's trace flag hands off to, rather than
// something the engines serialize themselves.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/srv6-gtp-dataplane/internal/engine"
	"github.com/your-org/srv6-gtp-dataplane/internal/telemetry/clickhouse"
)

// Record is one completed rewrite, captured for the optional trace sink.
// It wraps engine.TraceRecord with the bookkeeping fields the sink needs
// that the engines themselves have no reason to know about.
type Record struct {
	ID        uuid.UUID
	Timestamp time.Time
	Verdict   string
	engine.TraceRecord
}

// ClickHouseSink batches Records in memory and flushes them to
// ClickHouse on a timer or when the batch fills, never blocking the
// caller's Emit (which on the fast path is an engine's Process call).
type ClickHouseSink struct {
	client    *clickhouse.Client
	logger    *zap.Logger
	batchSize int
	flush     time.Duration

	mu      sync.Mutex
	pending []Record

	in     chan Record
	done   chan struct{}
	closed chan struct{}
}

// NewClickHouseSink starts the sink's background flush loop. Callers
// must call Close to drain any pending batch on shutdown.
func NewClickHouseSink(client *clickhouse.Client, logger *zap.Logger, batchSize int, flush time.Duration) *ClickHouseSink {
	if batchSize <= 0 {
		batchSize = 256
	}
	if flush <= 0 {
		flush = time.Second
	}
	s := &ClickHouseSink{
		client:    client,
		logger:    logger,
		batchSize: batchSize,
		flush:     flush,
		in:        make(chan Record, batchSize*4),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit enqueues rec for the async flush loop. It never blocks on the
// network: a full channel drops the record and logs at debug, since a
// trace record is diagnostic, not part of the packet's fate.
func (s *ClickHouseSink) Emit(rec engine.TraceRecord) {
	r := Record{ID: uuidNew(), Timestamp: timeNow(), TraceRecord: rec}
	select {
	case s.in <- r:
	default:
		s.logger.Debug("trace sink backpressure, dropping record", zap.String("engine", rec.Engine))
	}
}

func (s *ClickHouseSink) run() {
	defer close(s.closed)
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	for {
		select {
		case r := <-s.in:
			s.mu.Lock()
			s.pending = append(s.pending, r)
			full := len(s.pending) >= s.batchSize
			s.mu.Unlock()
			if full {
				s.flushBatch()
			}
		case <-ticker.C:
			s.flushBatch()
		case <-s.done:
			s.flushBatch()
			return
		}
	}
}

func (s *ClickHouseSink) flushBatch() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range batch {
		err := s.client.Exec(ctx, insertQuery,
			r.ID.String(), r.Timestamp, r.Engine, r.Verdict, r.AdjIndex, r.TEID,
			r.Src[:], r.Dst[:], r.IsIPv4, r.SrcV4[:], r.DstV4[:])
		if err != nil {
			s.logger.Warn("failed to insert trace record", zap.Error(err))
		}
	}
}

// Close drains any pending batch and closes the underlying connection.
func (s *ClickHouseSink) Close() error {
	close(s.done)
	<-s.closed
	return s.client.Close()
}

const insertQuery = `
	INSERT INTO srv6dp.trace_records (
		id, ts, engine, verdict, adj_index, teid,
		src, dst, is_ipv4, src_v4, dst_v4
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// uuidNew and timeNow are indirected so tests can make record IDs and
// timestamps deterministic without touching the sink's real clock.
var (
	uuidNew = uuid.New
	timeNow = time.Now
)
