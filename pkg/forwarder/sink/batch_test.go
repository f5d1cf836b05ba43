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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupByPath(t *testing.T) {
	bb := groupByPath([]pendingRecord{
		{path: "/b", payload: "1\n"},
		{path: "/a", payload: "2\n"},
		{path: "/b", payload: "3\n"},
		{path: "/a", payload: "4\n"},
	})
	assert.Len(t, bb, 2)
	assert.Equal(t, "/b", bb[0].path)
	assert.Equal(t, "1\n3\n", bb[0].payload())
	assert.Equal(t, 2, bb[0].records)
	assert.Equal(t, 0, bb[0].attempts)
	assert.Equal(t, "/a", bb[1].path)
	assert.Equal(t, "2\n4\n", bb[1].payload())
	assert.Equal(t, 2, bb[1].records)

	assert.Len(t, groupByPath(nil), 0)
}

func TestGroupByPathKeepsAttempts(t *testing.T) {
	bb := groupByPath([]pendingRecord{
		{path: "/a", payload: "1\n2\n", attempts: 1, records: 2},
		{path: "/a", payload: "3\n"},
		{path: "/b", payload: "4\n", attempts: 2},
		{path: "/a", payload: "5\n"},
	})
	assert.Len(t, bb, 3)
	assert.Equal(t, "/a", bb[0].path)
	assert.Equal(t, "1\n2\n", bb[0].payload())
	assert.Equal(t, 2, bb[0].records)
	assert.Equal(t, 1, bb[0].attempts)
	assert.Equal(t, "/a", bb[1].path)
	assert.Equal(t, "3\n5\n", bb[1].payload())
	assert.Equal(t, 2, bb[1].records)
	assert.Equal(t, 0, bb[1].attempts)
	assert.Equal(t, "/b", bb[2].path)
	assert.Equal(t, 2, bb[2].attempts)
}

func TestWithNewLine(t *testing.T) {
	assert.Equal(t, "\n", withNewLine(""))
	assert.Equal(t, "a\n", withNewLine("a"))
	assert.Equal(t, "a\n", withNewLine("a\n"))
}
