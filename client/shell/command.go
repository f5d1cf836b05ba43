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
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/logrange/lrhdfs/pkg/webhdfs"
)

type (
	command struct {
		name    string
		matcher *regexp.Regexp
		cmdFn   cmdFn
		help    string
	}

	config struct {
		args       []string
		recursive  bool
		home       string
		out        io.Writer
		beforeQuit func()
		cli        *webhdfs.Client
	}

	cmdFn func(ctx context.Context, cfg *config) error
)

const (
	cmdLsName       = "ls"
	cmdStatName     = "stat"
	cmdCatName      = "cat"
	cmdPutName      = "put"
	cmdAppendName   = "append"
	cmdMkdirName    = "mkdir"
	cmdMvName       = "mv"
	cmdLnName       = "ln"
	cmdRmName       = "rm"
	cmdDuName       = "du"
	cmdChecksumName = "checksum"
	cmdHomeName     = "home"
	cmdChmodName    = "chmod"
	cmdChownName    = "chown"
	cmdSetrepName   = "setrep"
	cmdTouchName    = "touch"
	cmdQuitName     = "quit"
	cmdHelpName     = "help"

	rgArgsGrp = "args"
	rgRecGrp  = "rec"

	timeFormat = "2006-01-02 15:04"
)

var commands []command

func init() {
	commands = []command{
		newCommand(cmdLsName, 0, 1, lsFn, "list a directory, e.g. 'ls /logs'"),
		newCommand(cmdStatName, 1, 1, statFn, "show the file status, e.g. 'stat /logs/app.log'"),
		newCommand(cmdCatName, 1, 3, catFn, "print the file content from the optional offset and length, e.g. 'cat /logs/app.log 100 20'"),
		newCommand(cmdPutName, 2, 2, putFn, "upload a local file, overwrites the remote one, e.g. 'put app.log /logs/app.log'"),
		newCommand(cmdAppendName, 2, 2, appendFn, "append a local file to the remote one, e.g. 'append app.log /logs/app.log'"),
		newCommand(cmdMkdirName, 1, 2, mkdirFn, "create a directory with parents, e.g. 'mkdir /logs/2019 750'"),
		newCommand(cmdMvName, 2, 2, mvFn, "rename a file or directory, e.g. 'mv /logs/a.log /logs/b.log'"),
		newCommand(cmdLnName, 2, 2, lnFn, "create a symbolic link, e.g. 'ln /logs/b.log /logs/latest'"),
		{
			name: cmdRmName,
			matcher: regexp.MustCompile(`(?i)^rm(?:\s+(?P<` + rgRecGrp + `>-r))?\s+(?P<` +
				rgArgsGrp + `>\S+)$`),
			cmdFn: rmFn,
			help:  "delete a file, -r deletes a directory recursively, e.g. 'rm -r /logs/2018'",
		},
		newCommand(cmdDuName, 0, 1, duFn, "show the content summary, e.g. 'du /logs'"),
		newCommand(cmdChecksumName, 1, 1, checksumFn, "show the file checksum, e.g. 'checksum /logs/app.log'"),
		newCommand(cmdHomeName, 0, 0, homeFn, "show the home directory"),
		newCommand(cmdChmodName, 2, 2, chmodFn, "set permission, e.g. 'chmod 640 /logs/app.log'"),
		newCommand(cmdChownName, 2, 2, chownFn, "set owner and group, e.g. 'chown hdfs:supergroup /logs/app.log'"),
		newCommand(cmdSetrepName, 2, 2, setrepFn, "set replication, e.g. 'setrep 2 /logs/app.log'"),
		newCommand(cmdTouchName, 1, 1, touchFn, "set the modification time to now, creates an empty file if absent"),
		{
			name:    cmdQuitName,
			matcher: regexp.MustCompile("(?i)^(?:quit|exit)$"),
			cmdFn:   quitFn,
			help:    "exit the program",
		},
		{
			name:    cmdHelpName,
			matcher: regexp.MustCompile("(?i)^help$"),
			cmdFn:   helpFn,
			help:    "show help",
		},
	}
}

// newCommand builds the command which accepts from min to max space
// separated arguments
func newCommand(name string, min, max int, fn cmdFn, help string) command {
	args := fmt.Sprintf(`(?:\s+(?P<%s>\S+(?:\s+\S+){%d,%d}))`, rgArgsGrp, maxInt(min-1, 0), maxInt(max-1, 0))
	if min == 0 {
		args += "?"
	}
	if max == 0 {
		args = ""
	}
	return command{
		name:    name,
		matcher: regexp.MustCompile("(?i)^" + name + args + "$"),
		cmdFn:   fn,
		help:    help,
	}
}

func execCmd(ctx context.Context, input string, cfg *config) error {
	for _, d := range commands {
		if !d.matcher.MatchString(input) {
			if input == d.name || strings.HasPrefix(input, d.name+" ") {
				return fmt.Errorf("command %s - invalid syntax, %s", d.name, d.help)
			}
			continue
		}
		vars := getInputVars(d.matcher, input)
		cfg.args = strings.Fields(vars[rgArgsGrp])
		cfg.recursive = vars[rgRecGrp] != ""
		return d.cmdFn(ctx, cfg)
	}
	return fmt.Errorf("unknown command=%v", input)
}

func getInputVars(re *regexp.Regexp, input string) map[string]string {
	match := re.FindStringSubmatch(input)
	varsMap := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i > 0 && i < len(match) {
			varsMap[name] = match[i]
		}
	}
	return varsMap
}

// absPath resolves the path against the home directory
func absPath(ctx context.Context, cfg *config, p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p), nil
	}
	if cfg.home == "" {
		resp, err := cfg.cli.HomeDirectory(ctx)
		if err != nil {
			return "", err
		}
		if cfg.home, err = resp.Path(); err != nil {
			return "", err
		}
	}
	return path.Join(cfg.home, p), nil
}

func argPath(ctx context.Context, cfg *config, idx int) (string, error) {
	p := "."
	if idx < len(cfg.args) {
		p = cfg.args[idx]
	}
	return absPath(ctx, cfg, p)
}

// checkResp turns non-2xx answers into errors
func checkResp(resp *webhdfs.Response, err error) (*webhdfs.Response, error) {
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

func checkBoolResp(what string, resp *webhdfs.Response, err error) error {
	if resp, err = checkResp(resp, err); err != nil {
		return err
	}
	ok, err := resp.Boolean()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s failed", what)
	}
	return nil
}

//===================== ls =====================

func lsFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := checkResp(cfg.cli.ListStatus(ctx, p))
	if err != nil {
		return err
	}
	sts, err := resp.FileStatuses()
	if err != nil {
		return err
	}

	var total int64
	for _, st := range sts {
		printStatusLine(cfg.out, &st)
		total += st.Length
	}
	fmt.Fprintf(cfg.out, "\ntotal: %d entries, %s\n", len(sts), humanize.Bytes(uint64(total)))
	return nil
}

func printStatusLine(w io.Writer, st *webhdfs.FileStatus) {
	name := st.PathSuffix
	if st.Symlink != "" {
		name += " -> " + st.Symlink
	}
	fmt.Fprintf(w, "%s%-4s %3d %-10s %-12s %10s %s %s\n", typeChar(st), st.Permission, st.Replication,
		st.Owner, st.Group, humanize.Bytes(uint64(st.Length)), st.ModTime().Format(timeFormat), name)
}

func typeChar(st *webhdfs.FileStatus) string {
	switch st.Type {
	case webhdfs.TypeDirectory:
		return "d"
	case webhdfs.TypeSymlink:
		return "l"
	}
	return "-"
}

//===================== stat =====================

func statFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := checkResp(cfg.cli.FileStatus(ctx, p))
	if err != nil {
		return err
	}
	st, err := resp.FileStatus()
	if err != nil {
		return err
	}

	fmt.Fprintf(cfg.out, "%-12s %s\n", "Path:", p)
	fmt.Fprintf(cfg.out, "%-12s %s\n", "Type:", st.Type)
	fmt.Fprintf(cfg.out, "%-12s %s (%s bytes)\n", "Size:", humanize.Bytes(uint64(st.Length)), humanize.Comma(st.Length))
	fmt.Fprintf(cfg.out, "%-12s %s\n", "Permission:", st.Permission)
	fmt.Fprintf(cfg.out, "%-12s %s:%s\n", "Owner:", st.Owner, st.Group)
	fmt.Fprintf(cfg.out, "%-12s %d\n", "Replication:", st.Replication)
	fmt.Fprintf(cfg.out, "%-12s %s\n", "Block size:", humanize.IBytes(uint64(st.BlockSize)))
	fmt.Fprintf(cfg.out, "%-12s %s (%s)\n", "Modified:", st.ModTime().Format(timeFormat), humanize.Time(st.ModTime()))
	if st.AccessTime > 0 {
		fmt.Fprintf(cfg.out, "%-12s %s\n", "Accessed:", st.AccTime().Format(timeFormat))
	}
	return nil
}

//===================== cat =====================

func catFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	var opts webhdfs.OpenOptions
	for i, dst := range []**int64{&opts.Offset, &opts.Length} {
		if len(cfg.args) <= i+1 {
			break
		}
		n, err := strconv.ParseInt(cfg.args[i+1], 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid offset or length %q, must be a non-negative number", cfg.args[i+1])
		}
		*dst = utils.Int64Ptr(n)
	}
	_, err = checkResp(cfg.cli.Open(ctx, p, cfg.out, &opts))
	return err
}

//===================== put/append =====================

func putFn(ctx context.Context, cfg *config) error {
	return upload(ctx, cfg, false)
}

func appendFn(ctx context.Context, cfg *config) error {
	return upload(ctx, cfg, true)
}

func upload(ctx context.Context, cfg *config, appnd bool) error {
	f, err := os.Open(cfg.args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	p, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}

	start := time.Now()
	if appnd {
		_, err = checkResp(cfg.cli.Append(ctx, p, f, fi.Size()))
	} else {
		_, err = checkResp(cfg.cli.Create(ctx, p, f, fi.Size(), &webhdfs.CreateOptions{Overwrite: utils.BoolPtr(true)}))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cfg.out, "%s written to %s in %s\n", humanize.Bytes(uint64(fi.Size())), p, time.Since(start))
	return nil
}

//===================== namespace =====================

func mkdirFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	perm := ""
	if len(cfg.args) > 1 {
		perm = cfg.args[1]
	}
	resp, err := cfg.cli.Mkdirs(ctx, p, perm)
	return checkBoolResp("mkdir "+p, resp, err)
}

func mvFn(ctx context.Context, cfg *config) error {
	src, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	dst, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}
	resp, err := cfg.cli.Rename(ctx, src, dst)
	return checkBoolResp("rename "+src, resp, err)
}

func lnFn(ctx context.Context, cfg *config) error {
	dst, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	link, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}
	_, err = checkResp(cfg.cli.CreateSymlink(ctx, dst, link))
	return err
}

func rmFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := cfg.cli.Delete(ctx, p, cfg.recursive)
	return checkBoolResp("delete "+p, resp, err)
}

func duFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := checkResp(cfg.cli.ContentSummary(ctx, p))
	if err != nil {
		return err
	}
	cs, err := resp.ContentSummary()
	if err != nil {
		return err
	}

	fmt.Fprintf(cfg.out, "%10s  %10s  %8s  %8s  %s\n", "SIZE", "CONSUMED", "FILES", "DIRS", "PATH")
	fmt.Fprintf(cfg.out, "%10s  %10s  %8s  %8s  %s\n", humanize.Bytes(uint64(cs.Length)),
		humanize.Bytes(uint64(cs.SpaceConsumed)), humanize.Comma(cs.FileCount), humanize.Comma(cs.DirectoryCount), p)
	return nil
}

func checksumFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := checkResp(cfg.cli.FileChecksum(ctx, p))
	if err != nil {
		return err
	}
	cs, err := resp.FileChecksum()
	if err != nil {
		return err
	}
	fmt.Fprintf(cfg.out, "%s  %s  %s\n", cs.Algorithm, cs.Bytes, p)
	return nil
}

func homeFn(ctx context.Context, cfg *config) error {
	resp, err := checkResp(cfg.cli.HomeDirectory(ctx))
	if err != nil {
		return err
	}
	home, err := resp.Path()
	if err != nil {
		return err
	}
	cfg.home = home
	fmt.Fprintln(cfg.out, home)
	return nil
}

func chmodFn(ctx context.Context, cfg *config) error {
	if _, err := strconv.ParseUint(cfg.args[0], 8, 16); err != nil {
		return fmt.Errorf("invalid permission=%s, octal value is expected", cfg.args[0])
	}
	p, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}
	_, err = checkResp(cfg.cli.SetPermission(ctx, p, cfg.args[0]))
	return err
}

func chownFn(ctx context.Context, cfg *config) error {
	og := strings.SplitN(cfg.args[0], ":", 2)
	owner, group := og[0], ""
	if len(og) > 1 {
		group = og[1]
	}
	if owner == "" && group == "" {
		return fmt.Errorf("invalid owner=%s, expected owner[:group] or :group", cfg.args[0])
	}
	p, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}
	_, err = checkResp(cfg.cli.SetOwner(ctx, p, owner, group))
	return err
}

func setrepFn(ctx context.Context, cfg *config) error {
	n, err := strconv.Atoi(cfg.args[0])
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid replication=%s, must be a positive number", cfg.args[0])
	}
	p, err := argPath(ctx, cfg, 1)
	if err != nil {
		return err
	}
	resp, err := cfg.cli.SetReplication(ctx, p, n)
	return checkBoolResp("setrep "+p, resp, err)
}

func touchFn(ctx context.Context, cfg *config) error {
	p, err := argPath(ctx, cfg, 0)
	if err != nil {
		return err
	}
	resp, err := cfg.cli.SetTimes(ctx, p, time.Now(), time.Time{})
	if err != nil {
		return err
	}
	if resp.IsNotFound() {
		resp, err = cfg.cli.Create(ctx, p, strings.NewReader(""), 0, &webhdfs.CreateOptions{Overwrite: utils.BoolPtr(false)})
	}
	_, err = checkResp(resp, err)
	return err
}

//===================== quit =====================

func quitFn(_ context.Context, cfg *config) error {
	if cfg.beforeQuit != nil {
		cfg.beforeQuit()
	}
	os.Exit(0)
	return nil
}

//===================== help =====================

func helpFn(_ context.Context, cfg *config) error {
	fmt.Fprintf(cfg.out, "\n\t%-10s\n", "[HELP]")
	for _, c := range commands {
		fmt.Fprintf(cfg.out, "\n\t%-15s %s", c.name, c.help)
	}
	fmt.Fprint(cfg.out, "\n\n")
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
