package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siddontang/go-log/log"
	"golang.org/x/sync/errgroup"

	"github.com/tsywkGo/go-mysql-binlog/streamer"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/defaultsyncer"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/flusher/localflusher"
)

var (
	configFile = flag.String("config", "./cmd/binlog-stream/config/binlog-stream.toml", "binlog-stream config file")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	log.SetLevelByName(*logLevel)

	cfg, err := streamer.NewConfigWithFile(*configFile)
	if err != nil {
		log.Fatalf("new streamer config error:%s", err)
	}
	if cfg.MetaConfig.MasterConfig == nil {
		log.Fatalf("meta_config.master_config is required")
	}

	f, err := localflusher.New(localflusher.WithDir(cfg.SyncerConfig.FlushDir))
	if err != nil {
		log.Fatalf("new flusher error:%s", err)
	}
	sc, err := defaultsyncer.New(
		defaultsyncer.WithSyncerID(cfg.SyncerConfig.SyncerID),
		defaultsyncer.WithFlusher(f),
		defaultsyncer.WithFlushDuration(time.Duration(cfg.SyncerConfig.FlushDurationSecond)*time.Second),
	)
	if err != nil {
		log.Fatalf("new syncer error:%s", err)
	}

	opts := cfg.SessionConfig
	if pos := sc.Position(); pos.Name != "" {
		log.Infof("resume from checkpoint %s", pos)
		opts.Filename, opts.Position, opts.StartAtEnd = pos.Name, pos.Pos, false
	}

	control, err := master.New(cfg.MetaConfig.MasterConfig)
	if err != nil {
		log.Fatalf("new master error:%s", err)
	}
	if err := control.CheckBinlogRowFormat(context.Background()); err != nil {
		log.Warnf("check binlog format:%s, rows events will be missing", err)
	}

	fatal := make(chan error, 1)
	s, err := streamer.New(cfg,
		streamer.WithControlChannel(control),
		streamer.WithSyncer(sc),
		streamer.WithHandler(newLogHandler(fatal)),
	)
	if err != nil {
		log.Fatalf("new streamer error:%s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sc.Run(gctx)
	})

	if err := s.Start(ctx, opts); err != nil {
		log.Errorf("start streamer error:%s", err)
	} else {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Infof("receive signal %s, stop streamer", sig)
		case err := <-fatal:
			log.Errorf("streamer failed, stop:%s", err)
		}
	}

	if err := s.Stop(); err != nil {
		log.Errorf("stop streamer error:%s", err)
	}
	<-s.Done()
	cancel()
	if err := g.Wait(); err != nil {
		log.Errorf("syncer flush error:%s", err)
	}
	if err := sc.Close(); err != nil {
		log.Errorf("close syncer error:%s", err)
	}
}
