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

package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToJsonStr(t *testing.T) {
	assert.Equal(t, `{"A":"<b>","B":1}`, ToJsonStr(struct {
		A string
		B int
	}{"<b>", 1}))
}

func TestPtrs(t *testing.T) {
	assert.Equal(t, int64(3), *Int64Ptr(3))
	assert.True(t, *BoolPtr(true))
	assert.False(t, *BoolPtr(false))
}

func TestWaitWaitGroup(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	assert.False(t, WaitWaitGroup(&wg, 10*time.Millisecond))
	wg.Done()
	assert.True(t, WaitWaitGroup(&wg, time.Second))
}
