package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

func TestFetchRecords(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ids":
			gotQuery = r.URL.RawQuery
			w.Write([]byte(`[
				{"time":"4/6/2012 17:40","SourceIP":"10.0.0.1","DestinationIP":"172.23.0.10","DestinationPort":"80",
				 "Classification":"Misc activity","Priority":"3","Label":"HTTP"},
				{"time":"garbage","SourceIP":"10.0.0.2"}
			]`))
		case "/api/merged", "/api/category":
			w.Write([]byte(`[{"time":"4/6/2012 17:41","SourceIP":"10.0.0.3","DestinationIP":"172.23.0.10","Label":"HTTP"}]`))
		case "/api/categories":
			w.Write([]byte(`{"server": ["172.23.0.10"], "workstation": ["172.23.1.0/24"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil)
	c.Decoder.Location = time.UTC
	start := time.Date(2012, 4, 6, 17, 40, 0, 0, time.UTC)
	records, issues, err := c.FetchRecords(context.Background(), telemetry.KindIDS, start, start.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if gotQuery != "end=2012-04-06T17%3A45%3A00&start=2012-04-06T17%3A40%3A00" {
		t.Errorf("query = %s", gotQuery)
	}
	if len(records) != 1 || records[0].Label != "HTTP" || records[0].Priority != 3 {
		t.Errorf("unexpected records: %+v", records)
	}
	if len(issues) != 1 {
		t.Errorf("expected one issue, got %v", issues)
	}

	if _, _, err := c.FetchRecords(context.Background(), telemetry.KindFirewall, start, start); err == nil {
		t.Errorf("expected an error for a 404")
	}
	for _, kind := range []telemetry.Kind{telemetry.KindMerged, telemetry.KindCategory} {
		got, _, err := c.FetchRecords(context.Background(), kind, start, start.Add(5*time.Minute))
		if err != nil {
			t.Errorf("FetchRecords(%s): %v", kind, err)
			continue
		}
		if len(got) != 1 || got[0].Kind != kind || got[0].SourceIP != "10.0.0.3" {
			t.Errorf("FetchRecords(%s) = %+v", kind, got)
		}
	}
	if _, _, err := c.FetchRecords(context.Background(), telemetry.Kind("netflow"), start, start); err == nil {
		t.Errorf("expected an error for an unknown kind")
	}

	cats, err := c.FetchAddressCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{"server": {"172.23.0.10"}, "workstation": {"172.23.1.0/24"}}
	if diff := cmp.Diff(want, cats); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
}

func TestWindowPaging(t *testing.T) {
	lo := time.Date(2012, 4, 5, 17, 51, 26, 0, time.UTC)
	hi := time.Date(2012, 4, 7, 9, 0, 4, 0, time.UTC)
	w := NewWindow(lo, 5*time.Minute, lo, hi)
	if !w.AtStart() || w.AtEnd() {
		t.Errorf("new window should be at the start")
	}
	if w.End != lo.Add(5*time.Minute) {
		t.Errorf("End = %v", w.End)
	}

	if b := w.Backward(); b.Start != lo {
		t.Errorf("Backward past the start should clamp, got %v", b.Start)
	}
	f := w.Forward().Forward()
	if f.Start != lo.Add(10*time.Minute) || f.AtStart() {
		t.Errorf("Forward twice = %v", f)
	}

	end := w.Day(hi).Forward()
	for i := 0; i < 200; i++ {
		end = end.Forward()
	}
	if !end.AtEnd() || end.End != hi || end.Start != hi.Add(-5*time.Minute) {
		t.Errorf("paging forward should stop at the end: %v", end)
	}

	day := w.Day(time.Date(2012, 4, 6, 13, 0, 0, 0, time.UTC))
	if day.Start != time.Date(2012, 4, 6, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Day = %v", day.Start)
	}
	if first := w.Day(lo); first.Start != lo {
		t.Errorf("the first day starts at the dataset start, got %v", first.Start)
	}

	if got := w.WithInterval(3 * time.Hour).Interval; got != MaxInterval {
		t.Errorf("interval should clamp to %v, got %v", MaxInterval, got)
	}
	if got := w.WithInterval(10 * time.Second).Interval; got != MinInterval {
		t.Errorf("interval should clamp to %v, got %v", MinInterval, got)
	}

	var days []string
	for _, d := range w.Days() {
		days = append(days, d.Format("2006-01-02"))
	}
	if diff := cmp.Diff([]string{"2012-04-05", "2012-04-06", "2012-04-07"}, days); diff != "" {
		t.Errorf("Days (-want +got):\n%s", diff)
	}
}

func TestLiveBuffer(t *testing.T) {
	l := NewLive("ids", telemetry.KindIDS, 2*time.Minute, nil)
	l.Decoder.Location = time.UTC
	l.Capacity = 3

	for _, msg := range []string{
		`{"time":"4/6/2012 17:40","SourceIP":"10.0.0.1","DestinationIP":"172.23.0.10"}`,
		`{"time":"4/6/2012 17:41","SourceIP":"10.0.0.2","DestinationIP":"172.23.0.10"}`,
		`not json`,
		`{"time":"4/6/2012 17:43","SourceIP":"10.0.0.3","DestinationIP":"172.23.0.10"}`,
	} {
		l.Add([]byte(msg))
	}

	var sources []string
	for _, r := range l.Snapshot() {
		sources = append(sources, r.SourceIP)
	}
	// 17:40 is more than two minutes older than 17:43.
	if diff := cmp.Diff([]string{"10.0.0.2", "10.0.0.3"}, sources); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
	if l.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", l.Dropped())
	}

	for i := 0; i < 3; i++ {
		l.Add([]byte(`{"time":"4/6/2012 17:44","SourceIP":"10.0.0.9","DestinationIP":"172.23.0.10"}`))
	}
	if got := len(l.Snapshot()); got != 3 {
		t.Errorf("capacity not enforced: %d records", got)
	}
	if l.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", l.Dropped())
	}
}

func TestLiveRunFlushesOnlyWhenDirty(t *testing.T) {
	l := NewLive("ids", telemetry.KindIDS, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flushed := make(chan int, 10)
	go l.Run(ctx, 5*time.Millisecond, func(rs []telemetry.Record) { flushed <- len(rs) })

	l.Add([]byte(`{"time":"4/6/2012 17:40","SourceIP":"10.0.0.1","DestinationIP":"172.23.0.10"}`))
	select {
	case n := <-flushed:
		if n != 1 {
			t.Errorf("flushed %d records, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no flush")
	}
	select {
	case n := <-flushed:
		t.Errorf("unexpected second flush of %d records", n)
	case <-time.After(50 * time.Millisecond):
	}
}
