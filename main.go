/*
anima-livelink bridges motion capture sessions into an engine live-link
client. It reads a TOML configuration, connects one source per configured
server and ticks them until interrupted.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/anima-livelink/engine"
	"github.com/spaghettifunk/anima-livelink/engine/api"
	"github.com/spaghettifunk/anima-livelink/engine/capture/sim"
	"github.com/spaghettifunk/anima-livelink/engine/config"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
	"github.com/spaghettifunk/anima-livelink/engine/recorder"
	"github.com/spaghettifunk/anima-livelink/testbed"
)

func main() {
	configPath := flag.String("config", "livelink.toml", "path to the configuration file")
	writeDefault := flag.Bool("init", false, "write the default configuration to -config and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.Save(*configPath, config.Default()); err != nil {
			core.LogFatal("writing %s: %s", *configPath, err)
		}
		core.LogInfo("wrote %s", *configPath)
		return
	}

	if err := run(*configPath); err != nil {
		core.LogFatal("%s", err)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("%s not found, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

// newSim starts an in-process capture server for one source.
func newSim(ctx context.Context, cfg config.SimConfig) *sim.Server {
	srv := sim.New(sim.WithFramerate(cfg.FramerateNumerator, cfg.FramerateDenominator))
	sim.Populate(srv, cfg.Humans, cfg.RigidBodies, cfg.Tags)
	go srv.Run(ctx)
	return srv
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	core.SetLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tb := testbed.NewTestGame("LiveLink bridge", cfg.TickRate, cfg.LogLevel)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		store, err := recorder.OpenStore(cfg.Recorder.Path, core.Logger("component", "recorder"))
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err = recorder.New(ctx, store, tb.Host, cfg.Recorder.QueueSize)
		if err != nil {
			return err
		}
		tb.Client = rec
		core.LogInfo("recording take %s to %s", rec.TakeID(), cfg.Recorder.Path)
	}

	eng, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	if err := eng.Initialize(); err != nil {
		return err
	}

	// indexed like cfg.Sources; nil where the source could not be created
	dir := livelink.NewDirectory()
	sources := make([]*livelink.Source, len(cfg.Sources))
	for i, sc := range cfg.Sources {
		srv := newSim(ctx, cfg.Sim)
		src, err := livelink.NewSource(ctx, dir, srv.Dialer(), sc.Options(cfg.LiveLink))
		if err != nil {
			core.LogError("source %s: %s", sc.Host, err)
			continue
		}
		sources[i] = src
		eng.AddSource(src)
	}

	watcher, err := config.NewWatcher(configPath, cfg)
	if err != nil {
		core.LogWarn("config hot reload disabled: %s", err)
	} else {
		defer watcher.Close()
		watcher.Subscribe(func(prev, next config.Config) {
			if prev.LogLevel != next.LogLevel {
				core.SetLogLevel(next.LogLevel)
				core.LogInfo("log level set to %s", next.LogLevel)
			}
			// sources are matched by position; added or removed entries need a restart
			for i, src := range sources {
				if src == nil || i >= len(next.Sources) || i >= len(prev.Sources) {
					continue
				}
				host := next.Sources[i].Host
				if host == prev.Sources[i].Host {
					continue
				}
				err := eng.Do(func() {
					if err := src.SetHost(ctx, host); err != nil {
						core.LogError("reconnecting to %s: %s", host, err)
					}
				})
				if err != nil {
					core.LogError("host change to %s dropped: %s", host, err)
				}
			}
		})
	}

	var server *api.Server
	if cfg.Status.Enabled {
		server = api.NewServer(api.ServerConfig{
			Listen: cfg.Status.Listen,
			Sources: func() []api.SourceView {
				all := eng.Sources()
				out := make([]api.SourceView, len(all))
				for i, s := range all {
					out[i] = s
				}
				return out
			},
			Subjects:  tb.Host,
			Recorder:  rec,
			Logger:    core.Logger("component", "api"),
			StartTime: time.Now(),
		})
		if err := server.Listen(); err != nil {
			return err
		}
		go func() {
			if err := server.Start(); err != nil {
				core.LogError("status server: %s", err)
			}
		}()
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		core.LogInfo("received %s, shutting down", sig)
		cancel()
	}()

	runErr := eng.Run(ctx)

	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			core.LogWarn("status server shutdown: %s", err)
		}
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			core.LogWarn("closing recorder: %s", err)
		}
		stats := rec.Stats()
		core.LogInfo("take %s: %d frames written, %d dropped", stats.TakeID, stats.FramesWritten, stats.Dropped)
	}
	return runErr
}
