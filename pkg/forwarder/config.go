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
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/logrange/lrhdfs/pkg/forwarder/sink"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type (
	// SourceConfig describes where a worker reads the records from
	SourceConfig struct {
		// Files are read one after another, "-" stands for stdin
		Files []string
		// Source is set to the records which have no source of their own
		Source string
	}

	WorkerConfig struct {
		Name   string
		Source *SourceConfig
		Sink   *sink.Config
	}

	// Config struct contains the forwarder configuration
	Config struct {
		Workers []*WorkerConfig
		// BatchSize is the max number of records passed to a sink at once
		BatchSize int
		// StatsIntervalSec is how often the workers report their counters
		StatsIntervalSec int
	}
)

const (
	StdinFile = "-"
)

//===================== config =====================

func NewDefaultConfig() *Config {
	return &Config{
		Workers:          []*WorkerConfig{},
		BatchSize:        1000,
		StatsIntervalSec: 10,
	}
}

// LoadCfgFromFile reads the config from the file. Files with .yaml or .yml
// extension are parsed as YAML, all others as JSON.
func LoadCfgFromFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, errors.Wrapf(err, "could not parse %s", path)
		}
	}

	cfg := &Config{}
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", path)
	}
	return cfg, nil
}

// yamlToJSON lets the YAML config use the same field names as the JSON one
func yamlToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	nv, err := normalizeYaml(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nv)
}

func normalizeYaml(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case map[interface{}]interface{}:
		res := make(map[string]interface{}, len(tv))
		for k, e := range tv {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported key %v, must be a string", k)
			}
			ne, err := normalizeYaml(e)
			if err != nil {
				return nil, err
			}
			res[ks] = ne
		}
		return res, nil
	case []interface{}:
		res := make([]interface{}, len(tv))
		for i, e := range tv {
			ne, err := normalizeYaml(e)
			if err != nil {
				return nil, err
			}
			res[i] = ne
		}
		return res, nil
	}
	return v, nil
}

func (c *Config) Apply(other *Config) {
	if other == nil {
		return
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	if other.StatsIntervalSec != 0 {
		c.StatsIntervalSec = other.StatsIntervalSec
	}
	if len(other.Workers) != 0 {
		c.Workers = deepcopy.Copy(other.Workers).([]*WorkerConfig)
	}
}

func (c *Config) Check() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid BatchSize=%v, must be > 0", c.BatchSize)
	}
	if c.StatsIntervalSec <= 0 {
		return fmt.Errorf("invalid StatsIntervalSec=%v, must be > 0sec", c.StatsIntervalSec)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("invalid Workers=%v, at least one worker must be defined", c.Workers)
	}

	wNames := make(map[string]bool)
	stdin := 0
	for _, w := range c.Workers {
		if w == nil {
			return fmt.Errorf("invalid Workers, must not contain nil")
		}
		if _, ok := wNames[w.Name]; ok {
			return fmt.Errorf("invalid Worker=%v: duplicate Name, must be unique", w)
		}
		wNames[w.Name] = true
		if err := w.Check(); err != nil {
			return fmt.Errorf("invalid Worker=%v: %v", w, err)
		}
		stdin += w.Source.stdinRefs()
	}
	if stdin > 1 {
		return fmt.Errorf("stdin is referred %d times, it could be read by one worker only", stdin)
	}

	return nil
}

func (c *Config) String() string {
	return utils.ToJsonStr(c)
}

//===================== workerConfig =====================

func (wc *WorkerConfig) Check() error {
	if strings.TrimSpace(wc.Name) == "" {
		return fmt.Errorf("invalid Name=%v, must be non-empty", wc.Name)
	}
	if wc.Source == nil {
		return fmt.Errorf("invalid Source=%v, must be non-nil", wc.Source)
	}
	if wc.Sink == nil {
		return fmt.Errorf("invalid Sink=%v, must be non-nil", wc.Sink)
	}

	if err := wc.Source.Check(); err != nil {
		return fmt.Errorf("invalid Source=%v: %v", wc.Source, err)
	}
	if err := wc.Sink.Check(); err != nil {
		return fmt.Errorf("invalid Sink=%v: %v", wc.Sink, err)
	}
	return nil
}

func (wc *WorkerConfig) String() string {
	return utils.ToJsonStr(wc)
}

//===================== sourceConfig =====================

func (sc *SourceConfig) Check() error {
	if len(sc.Files) == 0 {
		return fmt.Errorf("invalid Files=%v, must be non-empty", sc.Files)
	}
	for _, f := range sc.Files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("invalid Files=%v, must not contain empty names", sc.Files)
		}
	}
	if sc.stdinRefs() > 1 {
		return fmt.Errorf("invalid Files=%v, stdin could be read once", sc.Files)
	}
	return nil
}

func (sc *SourceConfig) stdinRefs() int {
	n := 0
	for _, f := range sc.Files {
		if f == StdinFile {
			n++
		}
	}
	return n
}

func (sc *SourceConfig) String() string {
	return utils.ToJsonStr(sc)
}
