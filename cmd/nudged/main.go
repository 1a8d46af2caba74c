package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nudge/internal/batch"
	"nudge/internal/config"
	"nudge/internal/notify"
	"nudge/internal/runtime/supervisor"
	"nudge/internal/storage"
	"nudge/internal/trigger"
	logx "nudge/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, log := logx.New(logConfig(cfg))
	defer svc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	deadline, err := config.ParseDurationOrDefault("sweep.deadline", cfg.Sweep.Deadline, 30*time.Second)
	if err != nil {
		return err
	}
	dueWithin, err := config.ParseDurationOrDefault("sweep.due_within", cfg.Sweep.DueWithin, time.Minute)
	if err != nil {
		return err
	}
	cacheTTL, err := config.ParseDurationOrDefault("sweep.cache_ttl", cfg.Sweep.CacheTTL, 5*time.Minute)
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	// The engine reads profiles and completions through a TTL cache so
	// a sweep doesn't hammer the database per trigger.
	var (
		tzLookup  trigger.TimezoneLookup
		cmpLookup trigger.CompletionLookup
	)
	if store != nil {
		cache := storage.NewLookupCache(store, store, cacheTTL)
		tzLookup, cmpLookup = cache, cache
	}
	engineLog := log.With(logx.String("comp", "engine"))
	zones := trigger.NewResolver(tzLookup, engineLog)
	gate := trigger.NewGate(cmpLookup, engineLog)
	dyn := trigger.NewDynamic(zones, nil)
	calc := trigger.NewCalculator(zones, gate, dyn, engineLog)

	sink, err := notify.New(notifyConfig(cfg), log.With(logx.String("comp", "notify")))
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// Config hot-reload: logging changes apply live; anything touching
	// the sweep or storage needs a restart.
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	sup.GoRestart("config.watch", mgr.Watch)
	sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok || next == nil {
					return
				}
				svc.Apply(logConfig(next))
				log.Info("logging config applied", logx.String("level", next.Logging.Level))
			}
		}
	})

	if cfg.Sweep.Enabled {
		if store == nil {
			return errors.New("sweep requires storage")
		}
		sweeper := batch.NewSweeper(batch.Config{
			Schedule:   cfg.Sweep.Schedule,
			Workers:    cfg.Sweep.Workers,
			RatePerSec: cfg.Sweep.RatePerSec,
			Deadline:   deadline,
			DueWithin:  dueWithin,
			Timezone:   cfg.Sweep.Timezone,
		}, store, calc, sink, log.With(logx.String("comp", "sweep")))
		if err := sweeper.Start(sup.Context()); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer sweeper.Stop()
	} else {
		log.Warn("sweep disabled; daemon will only serve config reloads")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		sup.Go0("watchdog", func(ctx context.Context) {
			ticker := time.NewTicker(interval / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}

	log.Info("nudged ready", logx.String("config", cfgPath))
	<-sup.Context().Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func notifyConfig(cfg *config.Config) notify.Config {
	out := notify.Config{Driver: cfg.Notify.Driver}
	if tg := cfg.Notify.Telegram; tg != nil {
		out.Telegram.Token = tg.Token
		out.Telegram.ChatID = tg.ChatID
		if tg.PollTimeout != "" {
			if d, err := config.ParseDurationField("notify.telegram.poll_timeout", tg.PollTimeout); err == nil {
				out.Telegram.PollTimeout = d
			}
		}
	}
	return out
}
