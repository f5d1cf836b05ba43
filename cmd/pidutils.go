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

package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// PidFile keeps the pid of a running process. The file is flock-ed while the
// process holds it, so a stale file left after a crash does not block the
// next start.
type PidFile struct {
	fn string
	fl *flock.Flock
}

var ErrNotRunning = errors.New("not running")

// NewPidFile creates new PidFile struct by the file name
func NewPidFile(fn string) *PidFile {
	return &PidFile{fn: fn}
}

// Interrupt sends SIGINT to the process which holds the pid file
func (pf *PidFile) Interrupt() error {
	pid, err := pf.ReadPid()
	if err != nil {
		return err
	}
	if pid == -1 || !pf.isLocked() {
		return ErrNotRunning
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "there is a process pid=%d, but could not access it", pid)
	}
	if err = p.Signal(os.Interrupt); err != nil {
		return errors.Wrapf(err, "could not send signal to pid=%d", pid)
	}
	return nil
}

// ReadPid reads the pid from the file, returns -1 if there is no file
func (pf *PidFile) ReadPid() (int, error) {
	res, err := ioutil.ReadFile(pf.fn)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}

	content := strings.TrimSpace(string(res))
	if len(content) > 10 {
		return -1, fmt.Errorf("wrong content of %s", pf.fn)
	}

	pid, err := strconv.Atoi(content)
	if err != nil {
		return -1, fmt.Errorf("could not parse content=%q of the file %s", content, pf.fn)
	}
	return pid, nil
}

// Lock acquires the pid file and writes the current process id there
func (pf *PidFile) Lock() error {
	if pf.fl != nil {
		return errors.New("the pid file is locked already")
	}

	plock := flock.New(pf.fn)
	if ok, err := plock.TryLock(); err != nil || !ok {
		if err == nil {
			err = errors.Errorf("%s is locked by another process", pf.fn)
		}
		return errors.Wrapf(err, "could not lock pid file")
	}

	if err := pf.writePid(); err != nil {
		_ = plock.Unlock()
		return errors.Wrapf(err, "could not write current pid to %s", pf.fn)
	}
	pf.fl = plock
	return nil
}

// Unlock releases the pid file acquired by Lock
func (pf *PidFile) Unlock() error {
	if pf.fl == nil {
		return errors.New("the pid file is not locked")
	}
	_ = os.Remove(pf.fn)
	err := pf.fl.Unlock()
	pf.fl = nil
	return err
}

// isLocked checks whether some process holds the lock right now
func (pf *PidFile) isLocked() bool {
	if pf.fl != nil {
		return true
	}
	if _, err := os.Stat(pf.fn); err != nil {
		return false
	}
	probe := flock.New(pf.fn)
	ok, err := probe.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = probe.Unlock()
		return false
	}
	return true
}

func (pf *PidFile) writePid() error {
	return ioutil.WriteFile(pf.fn, []byte(strconv.Itoa(os.Getpid())), 0640)
}

// RemoveArgsWithName removes the args which contain name, it returns new slice
func RemoveArgsWithName(args []string, name string) []string {
	name = strings.ToLower(name)
	if len(name) == 0 {
		return args
	}

	res := make([]string, 0, len(args))
	for _, a := range args {
		if strings.Contains(strings.ToLower(a), name) {
			continue
		}
		res = append(res, a)
	}
	return res
}

// RunCommand starts the command detached and returns once it survived for a
// second, or returns an error if it exited earlier.
func RunCommand(c string, params ...string) (int, error) {
	cmd := exec.Command(c, params...)
	if err := cmd.Start(); err != nil {
		return -1, errors.Wrapf(err, "could not run command %s with params=%v", c, params)
	}

	sigChan := make(chan os.Signal, 1)
	defer signal.Stop(sigChan)
	signal.Notify(sigChan, syscall.SIGCHLD)

	select {
	case <-sigChan:
		return -1, errors.Errorf("the process %s exited right after the start", c)
	case <-time.After(time.Second):
	}
	return cmd.Process.Pid, nil
}
