package audit

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
)

const (
	defaultBatchSize     = 500
	defaultFlushInterval = 5 * time.Second
	queueCapacity        = 4096
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// rowInserter writes a batch of events in one round trip
type rowInserter interface {
	Insert(ctx context.Context, events []*PurgeEvent) error
	Close() error
}

// ClickHouseEmitter buffers events and inserts them in batches from a
// background goroutine. Emit drops events when the buffer is full.
type ClickHouseEmitter struct {
	inserter      rowInserter
	queue         chan *PurgeEvent
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewClickHouseEmitter connects to ClickHouse and starts the batch writer.
func NewClickHouseEmitter(ctx context.Context, cfg configtypes.AuditClickHouseConfig, logger *zap.Logger) (*ClickHouseEmitter, error) {
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name: %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	logger.Debug("ClickHouse audit sink connected",
		zap.Strings("addr", cfg.Addr),
		zap.String("table", cfg.Table))

	return newClickHouseEmitter(&clickhouseInserter{conn: conn, table: cfg.Table}, cfg.BatchSize, time.Duration(cfg.FlushInterval), logger), nil
}

func newClickHouseEmitter(inserter rowInserter, batchSize int, flushInterval time.Duration, logger *zap.Logger) *ClickHouseEmitter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	e := &ClickHouseEmitter{
		inserter:      inserter,
		queue:         make(chan *PurgeEvent, queueCapacity),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		done:          make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *ClickHouseEmitter) Emit(event *PurgeEvent) {
	select {
	case <-e.done:
		return
	default:
	}

	select {
	case e.queue <- event:
	default:
		e.logger.Warn("ClickHouse audit queue full, dropping event",
			zap.String("trigger_id", event.TriggerID))
	}
}

// Close stops the writer after flushing queued events.
func (e *ClickHouseEmitter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		err = e.inserter.Close()
	})
	return err
}

func (e *ClickHouseEmitter) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	batch := make([]*PurgeEvent, 0, e.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.inserter.Insert(ctx, batch); err != nil {
			e.logger.Error("Failed to insert purge events into ClickHouse",
				zap.Int("events", len(batch)),
				zap.Error(err))
		}
		batch = make([]*PurgeEvent, 0, e.batchSize)
	}

	for {
		select {
		case ev := <-e.queue:
			batch = append(batch, ev)
			if len(batch) >= e.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.done:
			for {
				select {
				case ev := <-e.queue:
					batch = append(batch, ev)
					if len(batch) >= e.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// clickhouseInserter appends rows to a prepared batch insert
type clickhouseInserter struct {
	conn  driver.Conn
	table string
}

func (c *clickhouseInserter) Insert(ctx context.Context, events []*PurgeEvent) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+c.table+
		" (created_at, daemon_id, trigger_id, trigger, kind, zone_id, urls, outcome, status_code, message, error_type, duration)")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		urls := ev.URLs
		if urls == nil {
			urls = []string{}
		}
		if err := batch.Append(
			ev.CreatedAt,
			ev.DaemonID,
			ev.TriggerID,
			ev.Trigger,
			ev.Kind,
			ev.ZoneID,
			urls,
			ev.Outcome,
			int32(ev.StatusCode),
			ev.Message,
			ev.ErrorType,
			ev.Duration,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (c *clickhouseInserter) Close() error {
	return c.conn.Close()
}
