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
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrivets/log4g"
	"github.com/logrange/lrhdfs/pkg/model"
	"github.com/stretchr/testify/assert"
)

type testSink struct {
	lock   sync.Mutex
	events int
	onEv   func()
	closed bool
}

func (ts *testSink) OnEvent(events []*model.Message) error {
	ts.lock.Lock()
	ts.events += len(events)
	ts.lock.Unlock()
	if ts.onEv != nil {
		ts.onEv()
	}
	return nil
}

func (ts *testSink) Close() error {
	ts.closed = true
	return nil
}

func newTestWorker(snk *testSink, stdin io.Reader, files ...string) *worker {
	return newWorker(&workerConfig{
		desc:      &WorkerConfig{Name: "w1", Source: &SourceConfig{Files: files, Source: "app"}},
		sink:      snk,
		stdin:     stdin,
		batchSize: 10,
		statsIntv: time.Minute,
		logger:    log4g.GetLogger("forwarder.worker"),
	})
}

func TestWorkerCancelKeepsParsedRecords(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		sb.WriteString(fmt.Sprintf("msg=m%d\n", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	snk := &testSink{onEv: cancel}
	w := newTestWorker(snk, strings.NewReader(sb.String()), StdinFile)

	assert.Equal(t, context.Canceled, w.run(ctx))
	assert.True(t, snk.closed)
	assert.True(t, w.parsed > 0)
	assert.Equal(t, w.parsed, w.total+w.failed)
	assert.Equal(t, int(w.total), snk.events)
}

func TestWorkerCancelReleasesStdin(t *testing.T) {
	pr, pw := io.Pipe()
	snk := &testSink{}
	w := newTestWorker(snk, pr, StdinFile)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- w.run(ctx)
	}()

	_, err := pw.Write([]byte("msg=a\n"))
	assert.Nil(t, err)
	cancel()
	assert.Equal(t, context.Canceled, <-done)

	// the reader is closed, nobody blocks on stdin anymore
	_, err = pw.Write([]byte("msg=b\n"))
	assert.Equal(t, io.ErrClosedPipe, err)
}
