package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/resilience"
)

const (
	attemptHeader = "Readmate-Attempt"
	workerGroup   = "readmate-workers"
)

// Queue carries ingest jobs over core NATS. Jobs whose handler fails are
// republished with an attempt counter until MaxDeliveries is reached.
type Queue struct {
	conn          *nats.Conn
	subject       string
	executor      *resilience.Executor
	logger        *slog.Logger
	maxDeliveries int
	retryDelay    time.Duration
}

var _ ports.IngestQueue = (*Queue)(nil)

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	MaxDeliveries        int
	RetryDelay           time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("readmate"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	options.Logger = logger
	return newQueue(conn, subject, options), nil
}

func newQueue(conn *nats.Conn, subject string, options Options) *Queue {
	maxDeliveries := options.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	retryDelay := options.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		conn:          conn,
		subject:       subject,
		executor:      options.ResilienceExecutor,
		logger:        logger,
		maxDeliveries: maxDeliveries,
		retryDelay:    retryDelay,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIngest(ctx context.Context, req domain.IngestRequest) error {
	msg, err := encodeJob(q.subject, req, 1)
	if err != nil {
		return err
	}
	return q.publish(ctx, msg)
}

func (q *Queue) publish(ctx context.Context, msg *nats.Msg) error {
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	err := resilience.Do(ctx, q.executor, "nats.publish", call, classify)
	return resilience.Temporary("publish ingest job", err, classify)
}

// classify retries while the connection is down or reconnecting.
var classify = resilience.ClassifyWith(func(err error) (resilience.ErrorClassification, bool) {
	switch {
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Transient, true
	}
	return resilience.ErrorClassification{}, false
})

func (q *Queue) SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.IngestRequest) error) {
	req, attempt, err := decodeJob(msg)
	if err != nil {
		q.logger.Error("ingest_job_dropped", "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if attempt >= q.maxDeliveries {
		handlerCtx = domain.WithLastDelivery(handlerCtx)
	}
	herr := handler(handlerCtx, req)
	if herr == nil {
		return
	}
	if attempt >= q.maxDeliveries {
		q.logger.Error("ingest_job_exhausted", "doc_id", req.DocID, "attempt", attempt, "error", herr)
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay * time.Duration(attempt)):
	}
	retry, err := encodeJob(q.subject, req, attempt+1)
	if err == nil {
		err = q.publish(ctx, retry)
	}
	if err != nil {
		q.logger.Error("ingest_job_requeue_failed", "doc_id", req.DocID, "attempt", attempt, "error", err)
		return
	}
	q.logger.Warn("ingest_job_requeued", "doc_id", req.DocID, "attempt", attempt+1, "error", herr)
}

func encodeJob(subject string, req domain.IngestRequest, attempt int) (*nats.Msg, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest job: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(attemptHeader, strconv.Itoa(attempt))
	return msg, nil
}

func decodeJob(msg *nats.Msg) (domain.IngestRequest, int, error) {
	var req domain.IngestRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return domain.IngestRequest{}, 0, fmt.Errorf("decode ingest job: %w", err)
	}
	attempt := 1
	if raw := msg.Header.Get(attemptHeader); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return domain.IngestRequest{}, 0, fmt.Errorf("decode ingest job: bad attempt header %q", raw)
		}
		attempt = n
	}
	return req, attempt, nil
}
