package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"invitetrack/cmd/internal/metrics"
	"invitetrack/cmd/internal/tracker"
)

func quietLogger() Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("INVITETRACK_DATABASE_URL", "")
	t.Setenv("INVITETRACK_STORE", "")

	cfg := LoadConfig()
	if cfg.Store != StoreMemory {
		t.Fatalf("store=%q want=%q", cfg.Store, StoreMemory)
	}
	if cfg.PrivateLinkTTL != 7*24*time.Hour || cfg.ReportConcurrency != 8 || cfg.MinMemberAge != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.DailyReportAt != "00:00" || cfg.Timezone != "UTC" || cfg.InviterKey != "id" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("INVITETRACK_DATABASE_URL", "postgres://u:p@localhost:5432/invites")
	t.Setenv("INVITETRACK_STORE", "")
	t.Setenv("INVITETRACK_REPORT_CHATS", "-100, x, 0,-200")
	t.Setenv("INVITETRACK_GATEWAY_RPS", "2.5")
	t.Setenv("INVITETRACK_MIN_MEMBER_AGE", "72h")
	t.Setenv("INVITETRACK_INVITER_KEY", "display")

	cfg := LoadConfig()
	if cfg.Store != StorePostgres {
		t.Fatalf("store=%q want=%q", cfg.Store, StorePostgres)
	}
	if !slices.Equal(cfg.ReportChats, []int64{-100, -200}) {
		t.Fatalf("report chats=%v", cfg.ReportChats)
	}
	if cfg.GatewayRPS != 2.5 || cfg.MinMemberAge != 72*time.Hour || cfg.InviterKey != "display" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.DB.URL != "postgres://u:p@localhost:5432/invites" || cfg.DB.MaxConns != 10 || cfg.DB.MaxConnLifetime != time.Hour {
		t.Fatalf("db=%+v", cfg.DB)
	}
}

func TestPoolConfig(t *testing.T) {
	t.Parallel()

	pcfg, err := poolConfig(DBConfig{
		URL:             "postgres://u:p@db.internal:5432/invites",
		MaxConns:        7,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pcfg.MaxConns != 7 || pcfg.MinConns != 2 || pcfg.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("pool max=%d min=%d lifetime=%v", pcfg.MaxConns, pcfg.MinConns, pcfg.MaxConnLifetime)
	}
	if pcfg.ConnConfig.Host != "db.internal" || pcfg.ConnConfig.Database != "invites" {
		t.Fatalf("conn host=%q db=%q", pcfg.ConnConfig.Host, pcfg.ConnConfig.Database)
	}

	bad := map[string]DBConfig{
		"empty url":    {},
		"bad url":      {URL: "postgres://u:p@host:notaport/db"},
		"min over max": {URL: "postgres://u:p@host:5432/db", MaxConns: 2, MinConns: 5},
	}
	for name, c := range bad {
		if _, err := poolConfig(c); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func validConfig() Config {
	return Config{
		BotToken:      "123:abc",
		Store:         StoreMemory,
		InviterKey:    "id",
		DailyReportAt: "08:15",
		Timezone:      "UTC",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	set, err := validConfig().validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if set.policy != tracker.KeyByID || set.dailyAt.Hour != 8 || set.dailyAt.Minute != 15 || set.loc != time.UTC {
		t.Fatalf("settings=%+v", set)
	}

	cases := map[string]func(*Config){
		"missing token":   func(c *Config) { c.BotToken = "" },
		"unknown store":   func(c *Config) { c.Store = "redis" },
		"postgres no url": func(c *Config) { c.Store = StorePostgres },
		"sqlite no path":  func(c *Config) { c.Store = StoreSQLite },
		"bad key policy":  func(c *Config) { c.InviterKey = "email" },
		"bad daily time":  func(c *Config) { c.DailyReportAt = "25:00" },
		"bad timezone":    func(c *Config) { c.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if _, err := cfg.validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRegisterHTTP(t *testing.T) {
	t.Parallel()

	var failing bool
	ready := func(context.Context) error {
		if failing {
			return errors.New("db down")
		}
		return nil
	}
	m := metrics.New()
	m.TokenCreated("public")

	mux := http.NewServeMux()
	registerHTTP(mux, quietLogger(), ready, m.Handler())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("/healthz=%d", rec.Code)
	}
	if rec := get("/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("/readyz=%d", rec.Code)
	}
	failing = true
	if rec := get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz with store down=%d", rec.Code)
	}
	rec := get("/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `invitetrack_invite_tokens_created_total{mode="public"} 1`) {
		t.Fatalf("/metrics=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestOpenStores_SQLite(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Store = StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "invites.db")

	st, err := openStores(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	if st.kind != StoreSQLite || st.db == nil {
		t.Fatalf("stores=%+v", st)
	}
	if err := st.ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
}

func TestWire_MemoryStore(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.APIURL = "http://127.0.0.1:1"
	cfg.PollTimeout = time.Second
	cfg.GatewayRPS = 10
	cfg.GatewayRetries = 1
	cfg.PrivateLinkTTL = 24 * time.Hour
	cfg.ReportConcurrency = 2
	cfg.MembershipTimeout = time.Second
	cfg.ReportChats = []int64{-100}

	set, err := cfg.validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	st, err := openStores(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a, err := wire(cfg, set, quietLogger(), st)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	if a.bot == nil || a.scheduler == nil || a.metrics == nil {
		t.Fatalf("app not fully wired: %+v", a)
	}
	if err := a.stores.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("INVITETRACK_TEST_FLOAT", "-1")
	if got := EnvFloat("INVITETRACK_TEST_FLOAT", 3); got != 3 {
		t.Fatalf("EnvFloat negative=%v want=3", got)
	}
	t.Setenv("INVITETRACK_TEST_FLOAT", "0.5")
	if got := EnvFloat("INVITETRACK_TEST_FLOAT", 3); got != 0.5 {
		t.Fatalf("EnvFloat=%v want=0.5", got)
	}
	t.Setenv("INVITETRACK_TEST_LIST", "")
	if got := EnvInt64List("INVITETRACK_TEST_LIST"); got != nil {
		t.Fatalf("EnvInt64List empty=%v", got)
	}
	t.Setenv("INVITETRACK_TEST_DUR", "nope")
	if got := EnvDuration("INVITETRACK_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration=%v want=1m", got)
	}
	t.Setenv("INVITETRACK_TEST_DUR", "0")
	if got := EnvDuration("INVITETRACK_TEST_DUR", time.Minute); got != 0 {
		t.Fatalf("EnvDuration zero=%v want=0", got)
	}
	t.Setenv("INVITETRACK_TEST_DUR", "-5s")
	if got := EnvDuration("INVITETRACK_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration negative=%v want=1m", got)
	}
	t.Setenv("INVITETRACK_TEST_INT32", "-3")
	if got := EnvInt32("INVITETRACK_TEST_INT32", 4); got != 4 {
		t.Fatalf("EnvInt32 negative=%v want=4", got)
	}
	t.Setenv("INVITETRACK_TEST_INT", "0")
	if got := EnvInt("INVITETRACK_TEST_INT", 4); got != 4 {
		t.Fatalf("EnvInt zero=%v want=4", got)
	}
	t.Setenv("INVITETRACK_TEST_BOOL", "yes")
	if got := EnvBool("INVITETRACK_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool unparsable=%v want=true", got)
	}
}
