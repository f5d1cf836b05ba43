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

package storage

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testStorage(t *testing.T, s Storage) {
	_, err := s.ReadData("absent")
	assert.True(t, os.IsNotExist(err))

	assert.Nil(t, s.WriteData("b", []byte("bbb")))
	assert.Nil(t, s.WriteData("a", []byte("aaa")))
	assert.Nil(t, s.WriteData("b", []byte("bb2")))
	assert.NotNil(t, s.WriteData("../x", []byte("x")))
	assert.NotNil(t, s.WriteData(".lock", []byte("x")))

	data, err := s.ReadData("b")
	assert.Nil(t, err)
	assert.Equal(t, "bb2", string(data))

	keys, err := s.Keys()
	assert.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	assert.Nil(t, s.Delete("a"))
	assert.True(t, os.IsNotExist(s.Delete("a")))
	keys, _ = s.Keys()
	assert.Equal(t, []string{"b"}, keys)
}

func TestInMemStorage(t *testing.T) {
	s, err := NewStorage(&Config{Type: TypeInMem})
	assert.Nil(t, err)
	testStorage(t, s)
	assert.Nil(t, s.Close())
}

func TestFileStorage(t *testing.T) {
	dir, err := ioutil.TempDir("", "storageTest")
	if err != nil {
		t.Fatal("could not create temp dir, err=", err)
	}
	defer os.RemoveAll(dir)

	s, err := NewStorage(&Config{Type: TypeFile, Location: dir})
	assert.Nil(t, err)
	testStorage(t, s)
	assert.Nil(t, s.Close())

	// values survive reopening
	s, err = NewStorage(&Config{Type: TypeFile, Location: dir})
	assert.Nil(t, err)
	defer s.Close()
	data, err := s.ReadData("b")
	assert.Nil(t, err)
	assert.Equal(t, "bb2", string(data))
}

func TestFileStorageLocked(t *testing.T) {
	dir, err := ioutil.TempDir("", "storageTest")
	if err != nil {
		t.Fatal("could not create temp dir, err=", err)
	}
	defer os.RemoveAll(dir)

	s, err := NewStorage(&Config{Type: TypeFile, Location: dir})
	assert.Nil(t, err)
	defer s.Close()

	_, err = NewStorage(&Config{Type: TypeFile, Location: dir})
	assert.NotNil(t, err)
}

func TestConfigCheck(t *testing.T) {
	assert.NotNil(t, (&Config{Type: "s3"}).Check())
	assert.NotNil(t, (&Config{Type: TypeFile}).Check())
	assert.Nil(t, (&Config{Type: TypeInMem}).Check())
}
