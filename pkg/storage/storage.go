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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/jrivets/log4g"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/pkg/errors"
)

type (
	// Storage interface allows to read and write serialized data by keys
	Storage interface {
		ReadData(key string) ([]byte, error)
		WriteData(key string, val []byte) error
		Delete(key string) error
		// Keys returns all known keys in ascending order
		Keys() ([]string, error)
		Close() error
	}

	Config struct {
		Type     StorageType
		Location string
	}

	// inmemStorage struct an in-mem Storage implementation
	inmemStorage struct {
		lock   sync.Mutex
		data   map[string][]byte
		logger log4g.Logger
	}

	// fileStorage stuct a file Storage implementation. One value per file, the
	// directory is exclusively locked while the storage is open.
	fileStorage struct {
		location string
		fl       *flock.Flock
		logger   log4g.Logger
	}

	StorageType string
)

const (
	TypeFile  StorageType = "file"
	TypeInMem StorageType = "inmem"

	lockFileName = ".lock"
	tmpPrefix    = ".tmp-"
)

//===================== storage =====================

func NewStorage(cfg *Config) (Storage, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config; %v", err)
	}
	switch cfg.Type {
	case TypeFile:
		return newFileStorage(cfg.Location)
	case TypeInMem:
		return newInMemStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage type=%v", cfg.Type)
}

func NewDefaultStorage() Storage {
	return newInMemStorage()
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("invalid key=%q, must be non-empty, must not start with '.' or contain path separators", key)
	}
	return nil
}

//===================== config =====================

func (c *Config) Check() error {
	switch c.Type {
	case TypeInMem:
	case TypeFile:
		if strings.TrimSpace(c.Location) == "" {
			return fmt.Errorf("invalid Location=%q, must be non-empty for type=%s", c.Location, c.Type)
		}
	default:
		return fmt.Errorf("unknown Type=%v", c.Type)
	}
	return nil
}

func (c *Config) String() string {
	return utils.ToJsonStr(c)
}

//===================== inmemStorage =====================

func newInMemStorage() *inmemStorage {
	logger := log4g.GetLogger("storage").WithId("[inmem]").(log4g.Logger)
	return &inmemStorage{data: make(map[string][]byte), logger: logger}
}

func (ms *inmemStorage) ReadData(key string) ([]byte, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	v, ok := ms.data[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	ms.logger.Debug("Read key=", key, ", size=", len(v))
	return append([]byte{}, v...), nil
}

func (ms *inmemStorage) WriteData(key string, val []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if val == nil {
		return nil
	}

	ms.lock.Lock()
	ms.data[key] = append([]byte{}, val...)
	ms.lock.Unlock()
	ms.logger.Debug("Wrote key=", key, ", size=", len(val))
	return nil
}

func (ms *inmemStorage) Delete(key string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if _, ok := ms.data[key]; !ok {
		return os.ErrNotExist
	}
	delete(ms.data, key)
	return nil
}

func (ms *inmemStorage) Keys() ([]string, error) {
	ms.lock.Lock()
	res := make([]string, 0, len(ms.data))
	for k := range ms.data {
		res = append(res, k)
	}
	ms.lock.Unlock()
	sort.Strings(res)
	return res, nil
}

func (ms *inmemStorage) Close() error {
	return nil
}

func (ms *inmemStorage) String() string {
	return "[inmem]"
}

//===================== fileStorage =====================

func newFileStorage(location string) (*fileStorage, error) {
	err := os.MkdirAll(location, 0740)
	if err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(location, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "could not lock %s", location)
	}
	if !ok {
		return nil, errors.Errorf("storage %s is locked by another process", location)
	}

	logger := log4g.GetLogger("storage").WithId("[file]").(log4g.Logger)
	logger.Info("Opened file storage at ", location)
	return &fileStorage{location: location, fl: fl, logger: logger}, nil
}

func (fs *fileStorage) ReadData(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(fs.filePath(key))
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	if err == nil {
		fs.logger.Debug("Read key=", key, ", size=", len(data))
	}
	return data, err
}

// WriteData writes into a temporary file and renames it, so readers never see
// a partially written value.
func (fs *fileStorage) WriteData(key string, val []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	tf, err := ioutil.TempFile(fs.location, tmpPrefix)
	if err != nil {
		return err
	}
	_, err = tf.Write(val)
	if err == nil {
		err = tf.Sync()
	}
	if cerr := tf.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tf.Name(), fs.filePath(key))
	}
	if err != nil {
		_ = os.Remove(tf.Name())
		return errors.Wrapf(err, "could not write key=%s", key)
	}

	fs.logger.Debug("Wrote key=", key, ", size=", len(val))
	return nil
}

func (fs *fileStorage) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(fs.filePath(key))
	if os.IsNotExist(err) {
		return os.ErrNotExist
	}
	return err
}

func (fs *fileStorage) Keys() ([]string, error) {
	fis, err := ioutil.ReadDir(fs.location)
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(fis))
	for _, fi := range fis {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		res = append(res, fi.Name())
	}
	// ReadDir returns the entries sorted by name
	return res, nil
}

func (fs *fileStorage) Close() error {
	if fs.fl == nil {
		return nil
	}
	err := fs.fl.Unlock()
	fs.fl = nil
	fs.logger.Info("Closed, err=", err)
	return err
}

func (fs *fileStorage) filePath(file string) string {
	return filepath.Join(fs.location, file)
}

func (fs *fileStorage) String() string {
	return fmt.Sprintf("[file: location=%v]", fs.location)
}
