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
	"os"
	"sync"
	"time"

	"github.com/jrivets/log4g"
	"github.com/logrange/lrhdfs/pkg/forwarder/sink"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

type (
	// Forwarder runs one worker per configured source. It is a linker
	// component: the config is injected, workers are started by Init and
	// stopped by Shutdown.
	Forwarder struct {
		Config *Config `inject:""`

		// Stdin is read for the "-" file, os.Stdin if nil
		Stdin io.Reader

		cfg     *Config
		workers []*worker
		waitWg  sync.WaitGroup
		cancel  context.CancelFunc
		doneCh  chan struct{}
		logger  log4g.Logger
	}
)

const (
	shutdownTimeout = time.Minute
)

//===================== forwarder =====================

func NewForwarder() *Forwarder {
	f := new(Forwarder)
	f.doneCh = make(chan struct{})
	f.logger = log4g.GetLogger("forwarder")
	return f
}

// Init provides an implementation of linker.Initializer interface
func (f *Forwarder) Init(ctx context.Context) error {
	if f.Config == nil {
		return errors.New("no config provided")
	}
	if err := f.Config.Check(); err != nil {
		return fmt.Errorf("invalid config; %v", err)
	}
	f.cfg = deepcopy.Copy(f.Config).(*Config)
	f.logger.Info("Init(): config=", f.cfg)

	stdin := f.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	for _, wc := range f.cfg.Workers {
		snk, err := sink.NewSink(wc.Sink)
		if err != nil {
			f.closeWorkers()
			return errors.Wrapf(err, "failed to create sink for worker %s", wc.Name)
		}
		f.workers = append(f.workers, newWorker(&workerConfig{
			desc:      wc,
			sink:      snk,
			stdin:     stdin,
			batchSize: f.cfg.BatchSize,
			statsIntv: time.Duration(f.cfg.StatsIntervalSec) * time.Second,
			logger:    f.logger.WithId(fmt.Sprintf("[%v]", wc.Name)).(log4g.Logger),
		}))
	}

	var wctx context.Context
	wctx, f.cancel = context.WithCancel(ctx)
	for _, w := range f.workers {
		f.waitWg.Add(1)
		go func(w *worker) {
			defer f.waitWg.Done()
			_ = w.run(wctx)
		}(w)
	}
	go func() {
		f.waitWg.Wait()
		f.logger.Info("All workers are done.")
		close(f.doneCh)
	}()

	f.logger.Info("Init(): ", len(f.workers), " worker(s) started.")
	return nil
}

// Done returns a channel which is closed when all workers are done
func (f *Forwarder) Done() <-chan struct{} {
	return f.doneCh
}

// Shutdown provides implementation for linker.Shutdowner interface
func (f *Forwarder) Shutdown() {
	if f.cancel == nil {
		return
	}
	f.logger.Info("Shutdown(): stopping workers")
	f.cancel()
	if !utils.WaitDone(f.doneCh, shutdownTimeout) {
		f.logger.Warn("Shutdown(): workers are not stopped in ", shutdownTimeout)
		return
	}
	f.logger.Info("Shutdown(): done")
}

// Stats returns the numbers of forwarded and failed records once all workers
// are done, zeros before that
func (f *Forwarder) Stats() (forwarded, failed uint64) {
	select {
	case <-f.doneCh:
	default:
		return 0, 0
	}
	for _, w := range f.workers {
		forwarded += w.total
		failed += w.failed
	}
	return
}

func (f *Forwarder) closeWorkers() {
	for _, w := range f.workers {
		_ = w.sink.Close()
	}
	f.workers = nil
}
