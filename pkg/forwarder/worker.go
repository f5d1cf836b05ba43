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

package forwarder

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrivets/log4g"
	"github.com/logrange/lrhdfs/pkg/forwarder/sink"
	"github.com/logrange/lrhdfs/pkg/model"
	"github.com/pkg/errors"
)

type (
	workerConfig struct {
		desc      *WorkerConfig
		sink      sink.Sink
		stdin     io.Reader
		batchSize int
		statsIntv time.Duration
		logger    log4g.Logger
	}

	// worker reads the files of its source one after another and passes the
	// parsed records to the sink in batches.
	worker struct {
		desc      *WorkerConfig
		sink      sink.Sink
		stdin     io.Reader
		batchSize int
		statsIntv time.Duration

		parsed uint64
		total  uint64
		failed uint64
		logger log4g.Logger
		nowFn  func() time.Time
	}
)

const (
	maxLineSize = 1024 * 1024
)

//===================== worker =====================

func newWorker(wc *workerConfig) *worker {
	w := new(worker)
	w.desc = wc.desc
	w.sink = wc.sink
	w.stdin = wc.stdin
	w.batchSize = wc.batchSize
	w.statsIntv = wc.statsIntv
	w.logger = wc.logger
	w.nowFn = time.Now
	w.logger.Info("New for desc=", w.desc)
	return w
}

// run forwards all the files and closes the sink. Records the sink could not
// take are counted and skipped.
func (w *worker) run(ctx context.Context) error {
	var err error
	for _, fn := range w.desc.Source.Files {
		if err = w.forwardFile(ctx, fn); err != nil {
			w.logger.Error("Could not forward ", fn, ", err=", err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if cerr := w.sink.Close(); cerr != nil {
		w.logger.Error("Could not close sink, err=", cerr)
	}
	w.logger.Info("Stopped, parsed ", w.parsed, " records, forwarded ", w.total, ", failed ", w.failed, ", err=", err)
	return err
}

func (w *worker) forwardFile(ctx context.Context, fn string) error {
	var r io.Reader = w.stdin
	if fn != StdinFile {
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	w.logger.Info("Forwarding ", fn)

	lines := make(chan string, w.batchSize)
	errCh := make(chan error, 1)
	go func() {
		errCh <- readLines(ctx, r, lines)
		close(lines)
	}()

	batch := make([]*model.Message, 0, w.batchSize)
	nextStat := w.nowFn().Add(w.statsIntv)
	for {
		select {
		case <-ctx.Done():
			w.send(batch)
			// releases readLines blocked on stdin, files are closed by defer
			if c, ok := r.(io.Closer); ok && fn == StdinFile {
				_ = c.Close()
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				w.send(batch)
				return <-errCh
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			batch = append(batch, ParseLine(line, w.desc.Source.Source, w.nowFn()))
			w.parsed++
			// nothing else is buffered, don't hold the records
			if len(batch) >= w.batchSize || len(lines) == 0 {
				w.send(batch)
				batch = make([]*model.Message, 0, w.batchSize)
			}
		}

		if now := w.nowFn(); now.After(nextStat) {
			w.logger.Info("Forwarded in total ", w.total, " records, failed ", w.failed)
			nextStat = now.Add(w.statsIntv)
		}
	}
}

func (w *worker) send(batch []*model.Message) {
	if len(batch) == 0 {
		return
	}
	if err := w.sink.OnEvent(batch); err != nil {
		w.failed += uint64(len(batch))
		w.logger.Warn("Failed to sink ", len(batch), " records, err=", err)
		return
	}
	w.total += uint64(len(batch))
}

// readLines sends the lines of r to out until EOF or the context is closed
func readLines(ctx context.Context, r io.Reader, out chan<- string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Wrap(sc.Err(), "read failed")
}
