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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/logrange/lrhdfs/pkg/forwarder/sink"
	"github.com/stretchr/testify/assert"
)

func testWorkerConfig(name string, files ...string) *WorkerConfig {
	return &WorkerConfig{
		Name:   name,
		Source: &SourceConfig{Files: files},
		Sink:   &sink.Config{Type: sink.SnkTypeStdout},
	}
}

func TestConfigCheck(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{testWorkerConfig("w1", "a.log")}
	assert.Nil(t, cfg.Check())

	cfg.Workers = append(cfg.Workers, testWorkerConfig("w1", "b.log"))
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{testWorkerConfig("w1", "-"), testWorkerConfig("w2", "-")}
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{testWorkerConfig("w1", "-", "-")}
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{testWorkerConfig("w1")}
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{{Name: "w1", Source: &SourceConfig{Files: []string{"a"}},
		Sink: &sink.Config{Type: sink.SnkTypeWebHDFS}}}
	assert.NotNil(t, cfg.Check())

	cfg.Workers = []*WorkerConfig{testWorkerConfig("w1", "a.log")}
	cfg.BatchSize = 0
	assert.NotNil(t, cfg.Check())
}

func TestConfigApply(t *testing.T) {
	cfg := NewDefaultConfig()
	other := &Config{Workers: []*WorkerConfig{testWorkerConfig("w1", "a.log")}, BatchSize: 10}
	cfg.Apply(other)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 10, cfg.StatsIntervalSec)
	assert.Equal(t, &Config{Workers: other.Workers, BatchSize: 10, StatsIntervalSec: 10}, cfg)

	other.Workers[0].Name = "w2"
	assert.Equal(t, "w1", cfg.Workers[0].Name)

	cfg.Apply(nil)
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestLoadCfgFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "forwarderCfg")
	if err != nil {
		t.Fatal("could not create temp dir, err=", err)
	}
	defer os.RemoveAll(dir)

	js := `{"BatchSize": 5, "Workers": [{"Name": "w1", "Source": {"Files": ["a.log"], "Source": "app"},
		"Sink": {"Type": "webhdfs", "Params": {"Host": "nn", "Username": "hdfs", "File": "/logs/%Y.log"}}}]}`
	yml := `
BatchSize: 5
Workers:
  - Name: w1
    Source:
      Files: [a.log]
      Source: app
    Sink:
      Type: webhdfs
      Params:
        Host: nn
        Username: hdfs
        File: /logs/%Y.log
`
	jf := filepath.Join(dir, "fwd.json")
	yf := filepath.Join(dir, "fwd.yaml")
	assert.Nil(t, ioutil.WriteFile(jf, []byte(js), 0640))
	assert.Nil(t, ioutil.WriteFile(yf, []byte(yml), 0640))

	jc, err := LoadCfgFromFile(jf)
	assert.Nil(t, err)
	yc, err := LoadCfgFromFile(yf)
	assert.Nil(t, err)

	assert.Equal(t, 5, yc.BatchSize)
	assert.Len(t, yc.Workers, 1)
	assert.Equal(t, "app", yc.Workers[0].Source.Source)
	assert.Equal(t, "nn", yc.Workers[0].Sink.Params["Host"])
	assert.Equal(t, jc, yc)

	_, err = LoadCfgFromFile(filepath.Join(dir, "absent.json"))
	assert.NotNil(t, err)
	assert.Nil(t, ioutil.WriteFile(jf, []byte("{"), 0640))
	_, err = LoadCfgFromFile(jf)
	assert.NotNil(t, err)
}
