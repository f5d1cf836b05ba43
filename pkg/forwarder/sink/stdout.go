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
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/logrange/lrhdfs/pkg/model"
)

type (
	stdoutSinkConfig struct {
		// MessageFormat is the template each record is printed with
		MessageFormat string
	}

	stdoutSink struct {
		lock sync.Mutex
		fp   *model.FormatParser
		w    *bufio.Writer
	}
)

const defaultStdoutFormat = "${timestamp} ${source}: ${message}"

func newStdSkink(cfg *stdoutSinkConfig) (*stdoutSink, error) {
	return newWriterSink(cfg, os.Stdout)
}

func newWriterSink(cfg *stdoutSinkConfig, w io.Writer) (*stdoutSink, error) {
	fstr := cfg.MessageFormat
	if fstr == "" {
		fstr = defaultStdoutFormat
	}
	fp, err := model.NewFormatParser(fstr)
	if err != nil {
		return nil, err
	}
	return &stdoutSink{fp: fp, w: bufio.NewWriter(w)}, nil
}

func (ss *stdoutSink) OnEvent(events []*model.Message) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	for _, e := range events {
		ss.w.WriteString(withNewLine(ss.fp.FormatStr(e)))
	}
	return ss.w.Flush()
}

func (ss *stdoutSink) Close() error {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.w.Flush()
}
