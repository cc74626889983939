package clickhouse

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch.local", 9440),
		WithDatabase("quotagame"),
		WithCredentials("game", "p@ss/word"),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
	} {
		opt(&cfg)
	}

	u, err := url.Parse(buildDSN(cfg))
	if err != nil {
		t.Fatalf("dsn does not parse: %v", err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9440" || u.Path != "/quotagame" {
		t.Fatalf("dsn = %s", u)
	}
	if pw, _ := u.User.Password(); pw != "p@ss/word" || u.User.Username() != "game" {
		t.Fatalf("credentials not escaped round trip: %s", u.User)
	}
	q := u.Query()
	if q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" || q.Get("max_execution_time") != "90" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("dial_timeout") != "5s" || q.Has("write_timeout") {
		t.Fatalf("timeouts = %v", q)
	}
}

func TestBuildDSN_HTTP(t *testing.T) {
	cfg := defaultConfig()
	WithAddr("localhost", 0)(&cfg)
	WithHTTP(true)(&cfg)
	if dsn := buildDSN(cfg); !strings.HasPrefix(dsn, "http://default:@localhost:9000/default") {
		t.Fatalf("dsn = %s", dsn)
	}
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []ClientOption
	}{
		{"no host", nil},
		{"database with a statement", []ClientOption{WithAddr("localhost", 0), WithDatabase("quota; DROP TABLE settlements")}},
		{"idle above open", []ClientOption{WithAddr("localhost", 0), WithPool(2, 4, 0)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(context.Background(), tc.opts...); err == nil {
				t.Fatal("expected a config error")
			}
		})
	}
	if !ValidIdentifier("price_samples") || ValidIdentifier("1samples") || ValidIdentifier("") {
		t.Fatal("identifier check")
	}
}
