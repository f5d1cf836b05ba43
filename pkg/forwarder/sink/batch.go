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
	"strings"
)

type (
	// pendingRecord is a formatted record waiting for the flush
	pendingRecord struct {
		path    string
		payload string
		// attempts counts failed commits of the payload
		attempts int
		// records is the number of records in a requeued payload, 0 means 1
		records int
	}

	batchKey struct {
		path     string
		attempts int
	}

	// pathBatch is the concatenation of the pending payloads for one path
	pathBatch struct {
		path     string
		sb       strings.Builder
		records  int
		attempts int
	}
)

// groupByPath folds the records into batches. Records of one path with
// different attempts counts go to different batches, so a record never
// inherits the retries of another one. Batches are ordered by the first
// appearance of their (path, attempts), payloads inside a batch keep the
// arrival order.
func groupByPath(recs []pendingRecord) []*pathBatch {
	idx := make(map[batchKey]*pathBatch)
	res := make([]*pathBatch, 0, 4)
	for _, r := range recs {
		k := batchKey{r.path, r.attempts}
		b, ok := idx[k]
		if !ok {
			b = &pathBatch{path: r.path, attempts: r.attempts}
			idx[k] = b
			res = append(res, b)
		}
		b.sb.WriteString(r.payload)
		b.records += r.count()
	}
	return res
}

func (r *pendingRecord) count() int {
	if r.records > 0 {
		return r.records
	}
	return 1
}

func (b *pathBatch) payload() string {
	return b.sb.String()
}

// withNewLine makes sure the payload is line terminated
func withNewLine(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
