package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sudorandom/flowscope/pkg/categories"
	"github.com/sudorandom/flowscope/pkg/sources"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

func TestCategoriesOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/categories" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"server":["172.23.0.10"],"workstation":["172.23.1.0/24","not-an-ip"]}`))
	}))
	defer srv.Close()

	c := Categories{Reserved: true, GeoIPPath: "/nonexistent/GeoLite2-Country.mmdb"}
	store, err := c.Open(context.Background(), sources.NewClient(srv.URL, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for addr, want := range map[string]string{
		"172.23.0.10": "server",
		"172.23.1.7":  "workstation",
		"172.23.2.1":  "reserved:private",
		"127.0.0.1":   "reserved:loopback",
		"8.8.8.8":     "",
	} {
		if got := store.Category(addr); got != want {
			t.Errorf("Category(%s) = %q, want %q", addr, got, want)
		}
	}
}

func TestCategoriesOpenWithoutAPI(t *testing.T) {
	store, err := Categories{}.Open(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if got := store.Category("10.0.0.1"); got != "" {
		t.Errorf("nothing loaded, got %q", got)
	}

	w := Categories{Watch: []string{"trojan"}}.Watchlist()
	records := []telemetry.Record{{SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", Classification: "A Network Trojan was detected"}}
	if got := w.Highlight(store, records).Category("10.0.0.2"); got != categories.WatchedCategory {
		t.Errorf("watched address category = %q", got)
	}
}
