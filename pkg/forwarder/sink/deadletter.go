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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type (
	// deadLetter is a path batch given up after all attempts
	deadLetter struct {
		Path     string    `json:"path"`
		Payload  string    `json:"payload"`
		Records  int       `json:"records"`
		Attempts int       `json:"attempts"`
		Error    string    `json:"error"`
		Time     time.Time `json:"time"`
	}
)

// giveUp drops the batch, keeping it in the dead letter storage if there is one
func (ws *WebHDFSSink) giveUp(b *pathBatch, cause error) {
	droppedCounter.Inc()
	if ws.dlq == nil {
		ws.logger.Warn("Dropped ", b.records, " records for ", b.path)
		return
	}

	dl := &deadLetter{Path: b.path, Payload: b.payload(), Records: b.records, Attempts: b.attempts + 1,
		Error: cause.Error(), Time: time.Now()}
	data, err := json.Marshal(dl)
	if err == nil {
		err = ws.dlq.WriteData(ws.nextDeadLetterKey(), data)
	}
	if err != nil {
		deadLetterCounter.WithLabelValues(resultFailed).Inc()
		ws.logger.Error("Could not store dead letter, ", b.records, " records for ", b.path, " are lost, err=", err)
		return
	}
	deadLetterCounter.WithLabelValues("stored").Inc()
	ws.logger.Warn("Stored ", b.records, " records for ", b.path, " as dead letter")
}

// keys sort in the order the letters were stored
func (ws *WebHDFSSink) nextDeadLetterKey() string {
	return fmt.Sprintf("%020d-%06d.json", time.Now().UnixNano(), atomic.AddUint64(&ws.dlSeq, 1)%1000000)
}

// DeadLetters returns the number of stored dead letters
func (ws *WebHDFSSink) DeadLetters() (int, error) {
	if ws.dlq == nil {
		return 0, nil
	}
	keys, err := ws.dlq.Keys()
	return len(keys), err
}

// ReplayDeadLetters writes the stored dead letters in the order they were
// stored. A replayed letter is removed from the storage, the replay stops on
// the first failure so the order of writes per path is kept.
func (ws *WebHDFSSink) ReplayDeadLetters(ctx context.Context) (int, error) {
	if ws.dlq == nil {
		return 0, errors.New("no dead letter storage configured")
	}

	keys, err := ws.dlq.Keys()
	if err != nil {
		return 0, err
	}

	ws.logger.Info("Replaying ", len(keys), " dead letters")
	n := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		data, err := ws.dlq.ReadData(k)
		if err != nil {
			return n, err
		}
		var dl deadLetter
		if err := json.Unmarshal(data, &dl); err != nil {
			return n, errors.Wrapf(err, "corrupted dead letter %s", k)
		}
		if err := ws.commit(ctx, dl.Path, dl.Payload); err != nil {
			deadLetterCounter.WithLabelValues(resultFailed).Inc()
			return n, errors.Wrapf(err, "could not replay dead letter %s", k)
		}
		if err := ws.dlq.Delete(k); err != nil {
			return n, err
		}
		deadLetterCounter.WithLabelValues("replayed").Inc()
		n++
	}
	return n, nil
}
