// Package app wires the invite tracker runtime: config, logging, storage,
// the platform client, the bot loop, the daily scheduler and the ops HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"invitetrack/cmd/internal/attribution"
	"invitetrack/cmd/internal/bot"
	"invitetrack/cmd/internal/invite"
	"invitetrack/cmd/internal/leaderboard"
	"invitetrack/cmd/internal/membership"
	"invitetrack/cmd/internal/metrics"
	"invitetrack/cmd/internal/scheduler"
	"invitetrack/cmd/internal/telegram"
	"invitetrack/cmd/internal/tracker"

	"golang.org/x/sync/errgroup"
)

// App owns every long-running component and the resources they share.
type App struct {
	cfg Config
	log Logger

	stores  *stores
	metrics *metrics.Metrics

	bot       *bot.Bot
	scheduler *scheduler.Scheduler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	set, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a, err := wire(cfg, set, log, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, set settings, log Logger, st *stores) (*App, error) {
	m := metrics.New()

	client, err := telegram.NewClient(cfg.BotToken,
		telegram.WithAPIURL(cfg.APIURL),
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.PollTimeout + 10*time.Second}),
		telegram.WithRateLimit(cfg.GatewayRPS),
		telegram.WithRetries(cfg.GatewayRetries),
		telegram.WithLogger(log),
		telegram.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	registry, err := invite.NewService(st.invites, client,
		invite.WithPrivateTTL(cfg.PrivateLinkTTL),
		invite.WithLogger(log),
		invite.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	recorder, err := attribution.NewRecorder(st.events, registry,
		attribution.WithLogger(log),
		attribution.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	evaluator, err := membership.NewEvaluator(client,
		membership.WithTimeout(cfg.MembershipTimeout),
		membership.WithMinAge(cfg.MinMemberAge),
		membership.WithLogger(log),
		membership.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	board, err := leaderboard.NewService(recorder, evaluator,
		leaderboard.WithConcurrency(cfg.ReportConcurrency),
		leaderboard.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	tr, err := tracker.New(registry, recorder, board, client,
		tracker.WithKeyPolicy(set.policy),
		tracker.WithLogger(log),
		tracker.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	chats := scheduler.NewChatRegistry(recorder, cfg.ReportChats...)

	b, err := bot.New(client, tr,
		bot.WithPollTimeout(cfg.PollTimeout),
		bot.WithChatObserver(chats),
		bot.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(tr, client, chats,
		scheduler.WithDailyAt(set.dailyAt),
		scheduler.WithLocation(set.loc),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		stores:    st,
		metrics:   m,
		bot:       b,
		scheduler: sched,
	}, nil
}

// Run starts the ops server, the bot and the scheduler, and blocks until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.stores.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.stores.ready, a.metrics.Handler())

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.stores.kind)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error { return a.bot.Run(gctx) })
	g.Go(func() error { return a.scheduler.Run(gctx) })

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
