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
	"fmt"

	"github.com/goccy/go-json"
	"github.com/logrange/lrhdfs/pkg/model"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/mitchellh/mapstructure"
)

type (
	// Config is the sink description: its type and type specific params
	Config struct {
		Type   string
		Params map[string]interface{}
	}

	// Sink receives the records
	Sink interface {
		OnEvent(events []*model.Message) error
		Close() error
	}
)

const (
	SnkTypeStdout  = "stdout"
	SnkTypeWebHDFS = "webhdfs"
)

const (
	PrmWebHDFSHost     = "Host"
	PrmWebHDFSUsername = "Username"
	PrmWebHDFSFile     = "File"

	prmSecret = "Secret"
)

func NewSink(cfg *Config) (Sink, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config; %v", err)
	}

	switch cfg.Type {
	case SnkTypeStdout:
		scfg := &stdoutSinkConfig{}
		if err := decodeParams(cfg.Params, scfg); err != nil {
			return nil, err
		}
		return newStdSkink(scfg)
	case SnkTypeWebHDFS:
		wcfg := NewDefaultWebHDFSConfig()
		if err := decodeParams(cfg.Params, wcfg); err != nil {
			return nil, err
		}
		return NewWebHDFSSink(wcfg)
	}

	return nil, fmt.Errorf("unknown sink type=%v", cfg.Type)
}

func decodeParams(params map[string]interface{}, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	dc, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           v,
	})
	if err == nil {
		err = dc.Decode(params)
	}
	if err != nil {
		return fmt.Errorf("could not decode Params=%v; %v", params, err)
	}
	return nil
}

//===================== config =====================

func (c *Config) Check() error {
	if c.Type != SnkTypeStdout && c.Type != SnkTypeWebHDFS {
		return fmt.Errorf("unknown Type=%v", c.Type)
	}

	var pp []string

	switch c.Type {
	case SnkTypeStdout:
	case SnkTypeWebHDFS:
		pp = []string{PrmWebHDFSHost, PrmWebHDFSUsername, PrmWebHDFSFile}
	}

	for _, p := range pp {
		if err := c.checkParamExists(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) checkParamExists(pName string) error {
	if c.Params != nil {
		if _, ok := c.Params[pName]; ok {
			return nil
		}
	}
	return fmt.Errorf("invalid Params=%v, must have param '%v'", c.Params, pName)
}

// MarshalJSON hides the secret param, the config is printed into logs
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if _, ok := a.Params[prmSecret]; ok {
		a.Params = make(map[string]interface{}, len(c.Params))
		for k, v := range c.Params {
			a.Params[k] = v
		}
		a.Params[prmSecret] = "***"
	}
	return json.Marshal(a)
}

func (c *Config) String() string {
	return utils.ToJsonStr(c)
}
