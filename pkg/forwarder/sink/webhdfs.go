// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrivets/log4g"
	"github.com/klauspost/compress/gzip"
	"github.com/logrange/lrhdfs/pkg/model"
	"github.com/logrange/lrhdfs/pkg/storage"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/logrange/lrhdfs/pkg/webhdfs"
	"github.com/pkg/errors"
)

type (
	// WebHDFSConfig is the webhdfs sink settings
	WebHDFSConfig struct {
		Host     string
		Port     int
		Username string
		// Secret and Scheme are for gateways which need a token, see webhdfs.HeaderNegotiator
		Secret string `json:"-"`
		Scheme string
		// TLS switches the namenode address to https
		TLS bool

		// File is the destination path template, it accepts message fields like
		// ${source} and date conversions like %Y_%m_%d_%H_%M
		File string
		// MessageFormat is the record template, empty value means
		// "<timestamp> | <source> | <message>"
		MessageFormat string
		// TimeZone the dates and timestamps are rendered in
		TimeZone string

		// FlushIntervalSec 0 means every record is written synchronously
		FlushIntervalSec  int
		RequestTimeoutSec int
		// MaxRetries is how many flush cycles a failed batch is retried in, 0 means
		// the failed batch is given up immediately
		MaxRetries int
		// Compression could be empty or "gzip"
		Compression string
		// DeadLetterDir keeps the batches given up, if set
		DeadLetterDir string
	}

	// WebHDFSSink formats records into (path, payload) pairs and writes them to
	// HDFS. With a positive flush interval the records are accumulated and
	// written per path once an interval, otherwise every record is written as
	// soon as it is submitted.
	WebHDFSSink struct {
		cfg      WebHDFSConfig
		client   *webhdfs.Client
		pathFmt  *model.FormatParser
		msgFmt   *model.FormatParser
		loc      *time.Location
		interval time.Duration
		dlq      storage.Storage

		// lock guards pending and closed only, never held during I/O
		lock    sync.Mutex
		pending []pendingRecord
		closed  bool

		// flushLock makes flush non-reentrant
		flushLock sync.Mutex
		running   int32
		// stopCtx stops the flusher loop only, an in-flight flush runs to the end
		stopCtx   context.Context
		cancel    context.CancelFunc
		waitWg    sync.WaitGroup
		dlSeq     uint64

		logger log4g.Logger
	}
)

const (
	DefaultWebHDFSPort   = 50070
	DefaultMessageFormat = "${timestamp} | ${source} | ${message}"

	compressionGzip = "gzip"
	fieldSeparator  = " | "
	closeTimeout    = time.Minute
)

var (
	ErrSinkClosed = errors.New("sink is closed")
)

//===================== config =====================

func NewDefaultWebHDFSConfig() *WebHDFSConfig {
	return &WebHDFSConfig{
		Port:              DefaultWebHDFSPort,
		MessageFormat:     DefaultMessageFormat,
		TimeZone:          "UTC",
		RequestTimeoutSec: 60,
	}
}

func (c *WebHDFSConfig) Check() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("invalid Host=%q, must be non-empty", c.Host)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid Port=%d, must be in (0..65535]", c.Port)
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("invalid Username=%q, must be non-empty", c.Username)
	}
	if strings.TrimSpace(c.File) == "" {
		return fmt.Errorf("invalid File=%q, must be non-empty", c.File)
	}
	if _, err := model.NewPathFormatParser(c.File); err != nil {
		return fmt.Errorf("invalid File=%q: %v", c.File, err)
	}
	if _, err := webhdfs.ParseScheme(c.Scheme); err != nil {
		return fmt.Errorf("invalid Scheme=%q: %v", c.Scheme, err)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TimeZone=%q: %v", c.TimeZone, err)
	}
	if c.FlushIntervalSec < 0 {
		return fmt.Errorf("invalid FlushIntervalSec=%d, must be >= 0", c.FlushIntervalSec)
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("invalid RequestTimeoutSec=%d, must be >= 0", c.RequestTimeoutSec)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid MaxRetries=%d, must be >= 0", c.MaxRetries)
	}
	if c.Compression != "" && c.Compression != compressionGzip {
		return fmt.Errorf("invalid Compression=%q, must be empty or %q", c.Compression, compressionGzip)
	}
	return nil
}

// BaseURL returns the namenode address
func (c *WebHDFSConfig) BaseURL() string {
	scheme := "http"
	if c.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

func (c WebHDFSConfig) String() string {
	c.Secret = ""
	return utils.ToJsonStr(c)
}

//===================== webhdfsSink =====================

// NewWebHDFSSink creates the sink and starts its flusher if the flush interval
// is positive.
func NewWebHDFSSink(cfg *WebHDFSConfig) (*WebHDFSSink, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config; %v", err)
	}

	loc, _ := time.LoadLocation(cfg.TimeZone)
	pathFmt, _ := model.NewPathFormatParser(cfg.File)
	pathFmt.WithLocation(loc)

	var msgFmt *model.FormatParser
	if cfg.MessageFormat != "" {
		var err error
		if msgFmt, err = model.NewFormatParser(cfg.MessageFormat); err != nil {
			return nil, fmt.Errorf("invalid MessageFormat=%q: %v", cfg.MessageFormat, err)
		}
		msgFmt.WithLocation(loc)
	}

	scheme, _ := webhdfs.ParseScheme(cfg.Scheme)
	ccfg := &webhdfs.Config{
		BaseURL:        cfg.BaseURL(),
		Principal:      cfg.Username,
		Secret:         cfg.Secret,
		Scheme:         scheme,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}
	if scheme == webhdfs.SchemeExternal {
		ccfg.Negotiator = &webhdfs.HeaderNegotiator{Prefix: "Bearer "}
	}
	client, err := webhdfs.NewClient(ccfg)
	if err != nil {
		return nil, err
	}

	ws := new(WebHDFSSink)
	ws.cfg = *cfg
	ws.client = client
	ws.pathFmt = pathFmt
	ws.msgFmt = msgFmt
	ws.loc = loc
	ws.interval = time.Duration(cfg.FlushIntervalSec) * time.Second
	ws.logger = log4g.GetLogger("sink.webhdfs").WithId(fmt.Sprintf("[%s:%d]", cfg.Host, cfg.Port)).(log4g.Logger)
	if !pathFmt.HasFields() {
		ws.logger.Warn("File=", cfg.File, " has no fields or dates, all records go to one file")
	}

	if cfg.DeadLetterDir != "" {
		if ws.dlq, err = storage.NewStorage(&storage.Config{Type: storage.TypeFile, Location: cfg.DeadLetterDir}); err != nil {
			return nil, errors.Wrapf(err, "could not open dead letter storage")
		}
	}

	ws.stopCtx, ws.cancel = context.WithCancel(context.Background())
	atomic.StoreInt32(&ws.running, 1)
	if ws.interval > 0 {
		ws.runFlusher()
	}
	ws.logger.Info("Running, config=", ws.cfg)
	return ws, nil
}

// OnEvent submits the records one by one, stops on the first error
func (ws *WebHDFSSink) OnEvent(events []*model.Message) error {
	for i, e := range events {
		if err := ws.Submit(context.Background(), e); err != nil {
			return errors.Wrapf(err, "%d of %d records are not submitted", len(events)-i, len(events))
		}
	}
	return nil
}

// Submit formats the record and either writes it right away (no flush
// interval), or adds it to the pending records.
func (ws *WebHDFSSink) Submit(ctx context.Context, m *model.Message) error {
	rec := pendingRecord{path: ws.pathFmt.FormatStr(m), payload: ws.formatMessage(m)}

	ws.lock.Lock()
	if ws.closed {
		ws.lock.Unlock()
		return ErrSinkClosed
	}
	if ws.interval > 0 {
		ws.pending = append(ws.pending, rec)
		ws.lock.Unlock()
		recordsCounter.Inc()
		pendingGauge.Inc()
		return nil
	}
	ws.lock.Unlock()

	recordsCounter.Inc()
	return ws.commit(ctx, rec.path, rec.payload)
}

// Pending returns the number of records waiting for the flush
func (ws *WebHDFSSink) Pending() int {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	return len(ws.pending)
}

// IsRunning returns false once Close is called
func (ws *WebHDFSSink) IsRunning() bool {
	return atomic.LoadInt32(&ws.running) == 1
}

// Flush writes all pending records. It waits for a flush which is already in
// progress. Per path failures are logged and handled by the retry policy; the
// returned error only reports how many paths failed.
func (ws *WebHDFSSink) Flush(ctx context.Context) error {
	ws.flushLock.Lock()
	defer ws.flushLock.Unlock()
	return ws.flush(ctx, false)
}

// Close stops the flusher, lets an in-flight flush complete and flushes what
// is left. It is safe to call Close more than once.
func (ws *WebHDFSSink) Close() error {
	if !atomic.CompareAndSwapInt32(&ws.running, 1, 0) {
		return nil
	}
	ws.logger.Info("Closing...")

	ws.lock.Lock()
	ws.closed = true
	ws.lock.Unlock()

	ws.cancel()
	var err error
	if !utils.WaitWaitGroup(&ws.waitWg, closeTimeout) {
		err = errors.New("close timeout")
	}

	ws.flushLock.Lock()
	if ferr := ws.flush(context.Background(), true); err == nil {
		err = ferr
	}
	ws.flushLock.Unlock()

	_ = ws.client.Close()
	if ws.dlq != nil {
		_ = ws.dlq.Close()
	}
	ws.logger.Info("Closed, err=", err)
	return err
}

func (ws *WebHDFSSink) formatMessage(m *model.Message) string {
	if ws.msgFmt != nil {
		return withNewLine(ws.msgFmt.FormatStr(m))
	}
	var msg model.Message
	if m != nil {
		msg = *m
	}
	return withNewLine(msg.Timestamp.In(ws.loc).Format(model.TimestampFormat) + fieldSeparator +
		msg.Source + fieldSeparator + msg.Msg)
}

//===================== webhdfsSink.flush =====================

func (ws *WebHDFSSink) runFlusher() {
	ws.logger.Info("Running flush every ", ws.interval)
	ticker := time.NewTicker(ws.interval)

	ws.waitWg.Add(1)
	go func() {
		defer ws.waitWg.Done()
		defer ticker.Stop()
		for utils.Wait(ws.stopCtx, ticker) {
			ws.tryFlush()
		}
		ws.logger.Info("Flusher stopped.")
	}()
}

// tryFlush skips the tick if a flush is already running
func (ws *WebHDFSSink) tryFlush() {
	if !ws.flushLock.TryLock() {
		flushCounter.WithLabelValues(resultSkipped).Inc()
		ws.logger.Debug("Flush is in progress, skipping the tick")
		return
	}
	defer ws.flushLock.Unlock()
	if err := ws.flush(context.Background(), false); err != nil {
		ws.logger.Warn("Flush completed with errors: ", err)
	}
}

// drain takes all pending records
func (ws *WebHDFSSink) drain() []pendingRecord {
	ws.lock.Lock()
	recs := ws.pending
	ws.pending = nil
	ws.lock.Unlock()
	pendingGauge.Sub(float64(len(recs)))
	return recs
}

// requeue puts the failed batches in front of the records arrived meanwhile
func (ws *WebHDFSSink) requeue(recs []pendingRecord) {
	ws.lock.Lock()
	ws.pending = append(recs, ws.pending...)
	ws.lock.Unlock()
	pendingGauge.Add(float64(len(recs)))
}

// flush must be called with flushLock held. final means no more flushes
// follow, so nothing is requeued.
func (ws *WebHDFSSink) flush(ctx context.Context, final bool) error {
	recs := ws.drain()
	if len(recs) == 0 {
		return nil
	}

	start := time.Now()
	batches := groupByPath(recs)
	ws.logger.Debug("Flushing ", len(recs), " records to ", len(batches), " paths")

	var retry []pendingRecord
	failed := 0
	for _, b := range batches {
		err := ws.commit(ctx, b.path, b.payload())
		if err == nil {
			continue
		}
		failed++
		ws.logger.Error("Could not write ", b.records, " records to ", b.path, ", attempt=", b.attempts+1, ", err=", err)
		if !final && b.attempts < ws.cfg.MaxRetries {
			retry = append(retry, pendingRecord{path: b.path, payload: b.payload(), attempts: b.attempts + 1, records: b.records})
			continue
		}
		ws.giveUp(b, err)
	}

	if len(retry) > 0 {
		ws.requeue(retry)
	}
	flushDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		flushCounter.WithLabelValues(resultFailed).Inc()
		return errors.Errorf("%d of %d paths failed", failed, len(batches))
	}
	flushCounter.WithLabelValues(resultOk).Inc()
	return nil
}

// commit writes the payload to the path: append first, and exactly one create
// if the path does not exist.
func (ws *WebHDFSSink) commit(ctx context.Context, path, payload string) error {
	data := []byte(payload)
	if ws.cfg.Compression == compressionGzip {
		var err error
		if data, err = gzipData(data); err != nil {
			return err
		}
	}

	op := opAppend
	resp, err := ws.client.Append(ctx, path, bytes.NewReader(data), int64(len(data)))
	if err == nil && resp.IsNotFound() {
		writeCounter.WithLabelValues(opAppend, resultFailed).Inc()
		ws.logger.Debug("Path ", path, " does not exist, creating it")
		op = opCreate
		resp, err = ws.client.Create(ctx, path, bytes.NewReader(data), int64(len(data)), nil)
	}
	if err == nil && !resp.IsSuccess() {
		err = resp.Err()
	}
	if err != nil {
		writeCounter.WithLabelValues(op, resultFailed).Inc()
		return errors.Wrapf(err, "%s %s failed", op, path)
	}

	writeCounter.WithLabelValues(op, resultOk).Inc()
	bytesCounter.Add(float64(len(data)))
	return nil
}

// gzipData compresses the payload as a standalone gzip member. Members
// appended one after another form a valid gzip stream.
func gzipData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
