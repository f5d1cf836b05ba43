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

package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/logrange/lrhdfs/pkg/webhdfs"
	"github.com/peterh/liner"
)

type (
	shell struct {
		cli   *webhdfs.Client
		hfile string
	}
)

const (
	shellHistoryFileName = ".lrhdfs_history"
)

// Exec runs one shell command and writes its output to out
func Exec(ctx context.Context, cli *webhdfs.Client, input string, out io.Writer) error {
	return execCmd(ctx, strings.TrimSpace(input), &config{cli: cli, out: out})
}

// Run starts the interactive shell, it returns when the user quits
func Run(cli *webhdfs.Client) error {
	printLogo()
	newShell(cli, historyFilePath()).run()
	return nil
}

func historyFilePath() string {
	var fileDir = os.TempDir()
	usr, err := user.Current()
	if err == nil {
		fileDir = usr.HomeDir
	}
	return filepath.Join(fileDir, shellHistoryFileName)
}

func printLogo() {
	fmt.Print("" +
		" _        _        _  __     \n" +
		"| |_ _ __| |_  __| |/ _|___ \n" +
		"| | '_|__| ' \\/ _` |  _(_-< \n" +
		"|_|_|    |_||_\\__,_|_| /__/ \n\n")
}

func printError(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
}

//===================== shell =====================

func newShell(cli *webhdfs.Client, hFile string) *shell {
	s := new(shell)
	s.cli = cli
	s.hfile = hFile
	return s
}

func (s *shell) run() {
	lnr := liner.NewLiner()
	lnr.SetCtrlCAborts(true)

	s.loadHistory(lnr)
	beforeQuit := func() {
		s.saveHistory(lnr)
		_ = lnr.Close()
		fmt.Println("bye!")
	}

	defer beforeQuit()
	cfg := &config{ // shared to keep the home directory between commands
		cli:        s.cli,
		out:        os.Stdout,
		beforeQuit: beforeQuit,
	}

	for {
		inp, err := lnr.Prompt("hdfs>")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				break
			}
			printError(err)
		}

		inp = strings.TrimSpace(inp)
		if inp == "" {
			continue
		}

		lnr.AppendHistory(inp)
		ctx, cancel := context.WithCancel(context.Background())
		utils.NewNotifierOnIntTermSignal(func(s os.Signal) {
			cancel()
		})

		err = execCmd(ctx, inp, cfg)
		cancel()
		if err != nil {
			printError(err)
		}
	}
}

func (s *shell) loadHistory(lnr *liner.State) {
	f, err := os.OpenFile(s.hfile, os.O_RDONLY|os.O_CREATE, 0640)
	if err != nil {
		printError(err)
		return
	}
	defer f.Close()
	if _, err = lnr.ReadHistory(f); err != nil {
		printError(err)
	}
}

func (s *shell) saveHistory(lnr *liner.State) {
	f, err := os.OpenFile(s.hfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		printError(err)
		return
	}
	defer f.Close()
	if _, err = lnr.WriteHistory(f); err != nil {
		printError(err)
	}
}
