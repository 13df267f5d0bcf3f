//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Command init is the ViperOS bootstrap binary: it brings up the
// capability dispatcher and task service, spawns the canonical servers
// (blkd, fsd, netd, inputd, displayd) as tasks, and serves /metrics and a
// small debug introspection endpoint until a termination signal arrives.
// CLI/signal/logging skeleton follows cmd/sysbox-fs/main.go almost
// verbatim; config loading is new, built on spf13/viper.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/services/blkd"
	"github.com/splanck/viperos/services/displayd"
	"github.com/splanck/viperos/services/fsd"
	"github.com/splanck/viperos/services/inputd"
	"github.com/splanck/viperos/services/netd"
)

const usage = `viperos init

init is the first task in a ViperOS system: it owns the kernel's
dispatcher and task table and brings up every canonical server.
`

var (
	version  string
	commitId string
	builtAt  string
)

// config is the set of knobs init reads via viper, in priority order
// flag > env (VIPEROS_ prefix) > config file > default.
type config struct {
	LogLevel    string `mapstructure:"log-level"`
	LogFormat   string `mapstructure:"log-format"`
	MetricsAddr string `mapstructure:"metrics-addr"`
	DebugAddr   string `mapstructure:"debug-addr"`
	BlkPath     string `mapstructure:"blk-path"`
	BlkSectors  uint64 `mapstructure:"blk-sectors"`
	FsRoot      string `mapstructure:"fs-root"`
	DispWidth   uint32 `mapstructure:"disp-width"`
	DispHeight  uint32 `mapstructure:"disp-height"`
}

func loadConfig(ctx *cli.Context) (config, error) {
	v := viper.New()
	v.SetEnvPrefix("viperos")
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("metrics-addr", ":9481")
	v.SetDefault("debug-addr", ":9482")
	v.SetDefault("blk-path", "/var/lib/viperos/blk0.img")
	v.SetDefault("blk-sectors", uint64(65536))
	v.SetDefault("fs-root", "/var/lib/viperos/fsroot")
	v.SetDefault("disp-width", uint32(1024))
	v.SetDefault("disp-height", uint32(768))

	if path := ctx.GlobalString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	for _, name := range []string{"log-level", "log-format", "metrics-addr", "debug-addr", "blk-path", "fs-root"} {
		if ctx.GlobalIsSet(name) {
			v.Set(name, ctx.GlobalString(name))
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log-level %q not recognized: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	return nil
}

// system bundles the live kernel and lets the debug endpoint introspect
// it without every service needing to know about HTTP.
type system struct {
	disp  *kernel.Dispatcher
	tasks *kernel.Service
}

func (s *system) debugHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/assign":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.disp.AssignList())
	default:
		http.NotFound(w, r)
	}
}

func exitHandler(signalChan chan os.Signal, prof interface{ Stop() }) {
	s := <-signalChan
	logrus.Warnf("init caught signal: %s", s)
	logrus.Info("stopping (gracefully) ...")
	systemd.SdNotify(false, systemd.SdNotifyStopping)

	if s == syscall.SIGQUIT || s == syscall.SIGABRT {
		stacktrace := make([]byte, 32768)
		n := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:n]))
	}

	if prof != nil {
		prof.Stop()
	}
	logrus.Info("exiting ...")
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuOn := ctx.Bool("cpu-profiling")
	memOn := ctx.Bool("memory-profiling")
	if cpuOn && memOn {
		return nil, fmt.Errorf("cpu and memory profiling are mutually exclusive")
	}
	switch {
	case cpuOn:
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	case memOn:
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	default:
		return nil, nil
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "init"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a viper config file (yaml/json/toml)"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warning, error, fatal"},
		cli.StringFlag{Name: "log-format", Usage: "text or json"},
		cli.StringFlag{Name: "metrics-addr", Usage: "listen address for the Prometheus /metrics endpoint"},
		cli.StringFlag{Name: "debug-addr", Usage: "listen address for the introspection endpoint viperctl queries"},
		cli.StringFlag{Name: "blk-path", Usage: "backing file for blkd's flat sector store"},
		cli.StringFlag{Name: "fs-root", Usage: "root directory fsd serves"},
		cli.BoolFlag{Name: "cpu-profiling", Hidden: true},
		cli.BoolFlag{Name: "memory-profiling", Hidden: true},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("init\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n", c.App.Version, commitId, builtAt)
	}

	app.Action = func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		logrus.Info("booting ViperOS ...")

		reg := assign.New()
		disp := kernel.NewDispatcher(reg)
		tasks := kernel.NewService(logrus.StandardLogger())

		osFs := afero.NewOsFs()
		if err := osFs.MkdirAll(cfg.FsRoot, 0o755); err != nil {
			return fmt.Errorf("preparing fs-root %s: %w", cfg.FsRoot, err)
		}
		if err := osFs.MkdirAll(filepath.Dir(cfg.BlkPath), 0o755); err != nil {
			return fmt.Errorf("preparing blk-path directory: %w", err)
		}

		store, err := blkd.Open(osFs, cfg.BlkPath, cfg.BlkSectors, false)
		if err != nil {
			return fmt.Errorf("opening block store: %w", err)
		}

		services := []struct {
			name  string
			spawn func(disp *kernel.Dispatcher, task domain.Task) error
		}{
			{"blkd", func(disp *kernel.Dispatcher, task domain.Task) error {
				return blkd.NewService(store, logrus.StandardLogger()).Serve(disp, task)
			}},
			{"fsd", func(disp *kernel.Dispatcher, task domain.Task) error {
				fs := afero.NewBasePathFs(osFs, cfg.FsRoot)
				return fsd.NewService(fs, logrus.StandardLogger()).Serve(disp, task)
			}},
			{"netd", func(disp *kernel.Dispatcher, task domain.Task) error {
				return netd.NewService(logrus.StandardLogger()).Serve(disp, task)
			}},
			{"inputd", func(disp *kernel.Dispatcher, task domain.Task) error {
				return inputd.NewService(logrus.StandardLogger()).Serve(disp, task)
			}},
			{"displayd", func(disp *kernel.Dispatcher, task domain.Task) error {
				return displayd.NewService(cfg.DispWidth, cfg.DispHeight, logrus.StandardLogger()).Serve(disp, task)
			}},
		}

		for _, svc := range services {
			svc := svc
			if _, err := tasks.Spawn(func(task domain.Task) {
				if err := svc.spawn(disp, task); err != nil {
					logrus.WithField("service", svc.name).WithError(err).Error("service exited")
				}
			}); err != nil {
				return fmt.Errorf("spawning %s: %w", svc.name, err)
			}
			logrus.WithField("service", svc.name).Info("spawned")
		}

		prof, err := runProfiler(ctx)
		if err != nil {
			return err
		}

		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go func() {
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
					logrus.WithError(err).Warn("metrics listener stopped")
				}
			}()
			logrus.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
		}

		if cfg.DebugAddr != "" {
			sys := &system{disp: disp, tasks: tasks}
			go func() {
				if err := http.ListenAndServe(cfg.DebugAddr, http.HandlerFunc(sys.debugHandler)); err != nil && err != http.ErrServerClosed {
					logrus.WithError(err).Warn("debug listener stopped")
				}
			}()
			logrus.WithField("addr", cfg.DebugAddr).Info("debug endpoint listening")
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go exitHandler(exitChan, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("ready ...")

		select {}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
