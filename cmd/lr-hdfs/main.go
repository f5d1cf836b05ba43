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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jrivets/log4g"
	"github.com/logrange/linker"
	"github.com/logrange/lrhdfs/client/shell"
	"github.com/logrange/lrhdfs/cmd"
	"github.com/logrange/lrhdfs/pkg/forwarder"
	"github.com/logrange/lrhdfs/pkg/forwarder/sink"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/logrange/lrhdfs/pkg/webhdfs"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/urfave/cli.v2"
)

const (
	Version = "0.1.0"
)

const (
	// Common flag names
	argLogCfgFile    = "log-config-file"
	argCfgFile       = "config-file"
	argHost          = "host"
	argPort          = "port"
	argUser          = "user"
	argPath          = "path"
	argDeadLetterDir = "dead-letter-dir"
	argPidFile       = "pid-file"

	// Start command flag names
	argStartInput         = "input"
	argStartFlushInterval = "flush-interval"
	argStartCompression   = "compression"
	argStartMetricsAddr   = "metrics-addr"
	argStartAsDaemon      = "daemon"
)

var log = log4g.GetLogger("lr-hdfs")
var cfg = forwarder.NewDefaultConfig()

// overrides are the sink params given in the command line
var overrides = make(map[string]interface{})

func main() {
	defer log4g.Shutdown()

	app := &cli.App{
		Name:    "lr-hdfs",
		Version: Version,
		Usage:   "Forwards log records to HDFS over WebHDFS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  argLogCfgFile,
				Usage: "The log4g configuration file name",
			},
			&cli.StringFlag{
				Name:  argCfgFile,
				Usage: "The lr-hdfs configuration file name, JSON or YAML",
			},
			&cli.StringFlag{
				Name:  argHost,
				Usage: "The namenode host, overrides the sinks config",
			},
			&cli.IntFlag{
				Name:  argPort,
				Usage: "The namenode WebHDFS port, overrides the sinks config",
				Value: sink.DefaultWebHDFSPort,
			},
			&cli.StringFlag{
				Name:  argUser,
				Usage: "The HDFS user name, HADOOP_USER_NAME or USER environment variables by default",
			},
			&cli.StringFlag{
				Name:  argPath,
				Usage: "The destination path template, e.g. \"/logs/${source}/%Y-%m-%d.log\"",
			},
			&cli.StringFlag{
				Name:  argDeadLetterDir,
				Usage: "The local directory the batches which could not be written are kept in",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Forward the records from files or stdin",
				UsageText: "lr-hdfs start [command options]",
				Action:    runStart,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  argStartInput,
						Usage: "the files to read, \"-\" is stdin",
					},
					&cli.IntFlag{
						Name:  argStartFlushInterval,
						Usage: "flush interval in seconds, 0 writes every record right away",
					},
					&cli.StringFlag{
						Name:  argStartCompression,
						Usage: "payload compression, empty or \"gzip\"",
					},
					&cli.StringFlag{
						Name:  argStartMetricsAddr,
						Usage: "the address prometheus metrics are served on, e.g. \":9100\"",
					},
					&cli.StringFlag{
						Name:  argPidFile,
						Usage: "the pid file, the start fails if it is locked",
					},
					&cli.BoolFlag{
						Name:  argStartAsDaemon,
						Usage: "starting as a daemon (detached from the console).",
					},
				},
			},
			{
				Name:   "stop",
				Usage:  "Stop lr-hdfs started with a pid file",
				Action: runStop,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  argPidFile,
						Usage: "the pid file of the running process",
					},
				},
			},
			{
				Name:   "shell",
				Usage:  "Run the interactive WebHDFS shell",
				Action: runShell,
			},
			{
				Name:      "exec",
				Usage:     "Execute one shell command",
				ArgsUsage: "[shell command]",
				Action:    runExec,
			},
			{
				Name:   "replay",
				Usage:  "Write the dead letters of the configured sinks",
				Action: runReplay,
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	for _, c := range app.Commands {
		sort.Sort(cli.FlagsByName(c.Flags))
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		log4g.Shutdown()
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	logCfgFile := c.String(argLogCfgFile)
	if logCfgFile != "" {
		if _, err := os.Stat(logCfgFile); os.IsNotExist(err) {
			log.Warn("No file ", logCfgFile, " will use default log4g configuration")
		} else {
			log.Info("Loading log4g config from ", logCfgFile)
			if err := log4g.ConfigF(logCfgFile); err != nil {
				return errors.Wrapf(err, "could not parse %s file as a log4g configuration, please check syntax", logCfgFile)
			}
		}
	}

	if cfgFile := c.String(argCfgFile); cfgFile != "" {
		log.Info("Loading lr-hdfs config from ", cfgFile)
		fc, err := forwarder.LoadCfgFromFile(cfgFile)
		if err != nil {
			return err
		}
		cfg.Apply(fc)
	}

	if h := c.String(argHost); h != "" {
		overrides[sink.PrmWebHDFSHost] = h
	}
	if c.IsSet(argPort) {
		overrides["Port"] = c.Int(argPort)
	}
	if u := c.String(argUser); u != "" {
		overrides[sink.PrmWebHDFSUsername] = u
	}
	if p := c.String(argPath); p != "" {
		overrides[sink.PrmWebHDFSFile] = p
	}
	if d := c.String(argDeadLetterDir); d != "" {
		overrides["DeadLetterDir"] = d
	}
	return nil
}

// initCfg returns the forwarder config: the loaded one with the command line
// overrides, or the stdin worker built from the command line.
func initCfg(extra map[string]interface{}) (*forwarder.Config, error) {
	res := forwarder.NewDefaultConfig()
	res.Apply(cfg)
	if len(res.Workers) == 0 {
		params := map[string]interface{}{"Port": sink.DefaultWebHDFSPort}
		if u := defaultUser(); u != "" {
			params[sink.PrmWebHDFSUsername] = u
		}
		res.Workers = []*forwarder.WorkerConfig{{
			Name:   "default",
			Source: &forwarder.SourceConfig{Files: []string{forwarder.StdinFile}},
			Sink:   &sink.Config{Type: sink.SnkTypeWebHDFS, Params: params},
		}}
	}

	for _, w := range res.Workers {
		if w.Sink == nil || w.Sink.Type != sink.SnkTypeWebHDFS {
			continue
		}
		if w.Sink.Params == nil {
			w.Sink.Params = make(map[string]interface{})
		}
		for k, v := range overrides {
			w.Sink.Params[k] = v
		}
		for k, v := range extra {
			w.Sink.Params[k] = v
		}
	}

	if err := res.Check(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration, a config file or --%s, --%s and --%s are expected",
			argHost, argUser, argPath)
	}
	return res, nil
}

func defaultUser() string {
	if u := os.Getenv("HADOOP_USER_NAME"); u != "" {
		return u
	}
	return os.Getenv("USER")
}

//===================== start/stop =====================

func runStart(c *cli.Context) error {
	if c.Args().Len() > 0 {
		return fmt.Errorf("no arguments expected, but %s", c.Args())
	}

	extra := make(map[string]interface{})
	if c.IsSet(argStartFlushInterval) {
		extra["FlushIntervalSec"] = c.Int(argStartFlushInterval)
	}
	if cmp := c.String(argStartCompression); cmp != "" {
		extra["Compression"] = cmp
	}
	fcfg, err := initCfg(extra)
	if err != nil {
		return err
	}
	if in := c.StringSlice(argStartInput); len(in) > 0 {
		if len(fcfg.Workers) != 1 {
			return fmt.Errorf("--%s could be used with one worker only, but %d configured", argStartInput, len(fcfg.Workers))
		}
		fcfg.Workers[0].Source.Files = in
		if err = fcfg.Check(); err != nil {
			return err
		}
	}

	if c.Bool(argStartAsDaemon) {
		pid, err := cmd.RunCommand(os.Args[0], cmd.RemoveArgsWithName(os.Args[1:], argStartAsDaemon)...)
		if err == nil {
			fmt.Println("Started, pid=", pid)
		}
		return err
	}

	if pfn := c.String(argPidFile); pfn != "" {
		pf := cmd.NewPidFile(pfn)
		if err := pf.Lock(); err != nil {
			return errors.Wrapf(err, "already running?")
		}
		defer pf.Unlock()
	}

	if err := sink.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	if addr := c.String(argStartMetricsAddr); addr != "" {
		srv := runMetricsServer(addr)
		defer srv.Close()
	}

	ctx := newCtx()
	fwd := forwarder.NewForwarder()

	injector := linker.New()
	injector.SetLogger(log4g.GetLogger("injector"))
	injector.Register(
		linker.Component{Name: "", Value: fcfg},
		linker.Component{Name: "", Value: fwd},
	)
	injector.Init(ctx)

	select {
	case <-ctx.Done():
	case <-fwd.Done():
	}
	injector.Shutdown()

	total, failed := fwd.Stats()
	log.Info("Forwarded ", total, " records, failed ", failed)
	if failed > 0 {
		return fmt.Errorf("%d records could not be forwarded", failed)
	}
	return nil
}

func runMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("Serving metrics on ", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed, err=", err)
		}
	}()
	return srv
}

func runStop(c *cli.Context) error {
	pfn := c.String(argPidFile)
	if pfn == "" {
		return fmt.Errorf("--%s is expected", argPidFile)
	}
	if err := cmd.NewPidFile(pfn).Interrupt(); err != nil {
		return err
	}
	fmt.Println("Interrupt is sent")
	return nil
}

//===================== shell =====================

func newClient() (*webhdfs.Client, error) {
	wcfg := sink.NewDefaultWebHDFSConfig()
	wcfg.Username = defaultUser()
	if h, ok := overrides[sink.PrmWebHDFSHost].(string); ok {
		wcfg.Host = h
	}
	if p, ok := overrides["Port"].(int); ok {
		wcfg.Port = p
	}
	if u, ok := overrides[sink.PrmWebHDFSUsername].(string); ok {
		wcfg.Username = u
	}
	if wcfg.Host == "" || wcfg.Username == "" {
		return nil, fmt.Errorf("--%s and --%s are expected", argHost, argUser)
	}
	return webhdfs.NewClient(&webhdfs.Config{
		BaseURL:        wcfg.BaseURL(),
		Principal:      wcfg.Username,
		RequestTimeout: time.Duration(wcfg.RequestTimeoutSec) * time.Second,
	})
}

func runShell(c *cli.Context) error {
	hc, err := newClient()
	if err != nil {
		return err
	}
	defer hc.Close()
	return shell.Run(hc)
}

func runExec(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("a shell command is expected, e.g. 'lr-hdfs --host nn exec ls /'")
	}
	hc, err := newClient()
	if err != nil {
		return err
	}
	defer hc.Close()
	return shell.Exec(newCtx(), hc, strings.Join(c.Args().Slice(), " "), os.Stdout)
}

//===================== replay =====================

func runReplay(c *cli.Context) error {
	fcfg, err := initCfg(map[string]interface{}{"FlushIntervalSec": 0})
	if err != nil {
		return err
	}

	ctx := newCtx()
	total := 0
	for _, w := range fcfg.Workers {
		if w.Sink.Type != sink.SnkTypeWebHDFS {
			continue
		}
		n, err := replaySink(ctx, w)
		total += n
		if err != nil {
			return errors.Wrapf(err, "worker %s replayed %d dead letters", w.Name, n)
		}
	}
	fmt.Printf("%d dead letters replayed\n", total)
	return nil
}

func replaySink(ctx context.Context, w *forwarder.WorkerConfig) (int, error) {
	s, err := sink.NewSink(w.Sink)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	ws := s.(*sink.WebHDFSSink)
	if n, err := ws.DeadLetters(); err != nil || n == 0 {
		return 0, err
	}
	log.Info("Replaying dead letters of worker ", w.Name)
	return ws.ReplayDeadLetters(ctx)
}

func newCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	utils.NewNotifierOnIntTermSignal(func(s os.Signal) {
		log.Warn("Handling signal=", s)
		cancel()
	})
	return ctx
}
