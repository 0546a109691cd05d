package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/gateway"
	"github.com/BadgerOps/pimsync/internal/poll"
	"github.com/BadgerOps/pimsync/internal/remote"
	"github.com/cenkalti/backoff/v4"
)

// instantTimer fires as soon as it is started.
type instantTimer struct{ c chan time.Time }

func newInstantTimer() backoff.Timer { return &instantTimer{c: make(chan time.Time, 1)} }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop() {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

type span struct {
	path       string
	start, end time.Time
}

// fakeImporter is an instrumented stand-in for the remote importer.
type fakeImporter struct {
	mu       sync.Mutex
	spans    []span
	bodies   map[string]string
	status   []string
	accept   string
	fail     map[string]int
	holdFor  time.Duration
	statusAt int
}

func newFakeImporter() *fakeImporter {
	return &fakeImporter{bodies: map[string]string{}, accept: "true", fail: map[string]int{}}
}

func (f *fakeImporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, _ := io.ReadAll(r.Body)
	op := r.URL.Path[len("/api/"):]

	if f.holdFor > 0 {
		time.Sleep(f.holdFor)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.spans = append(f.spans, span{path: op, start: start, end: time.Now()})
	f.bodies[op] = string(body)

	if code, ok := f.fail[op]; ok {
		w.WriteHeader(code)
		return
	}

	switch op {
	case poll.StatusOperation:
		i := f.statusAt
		if i >= len(f.status) {
			i = len(f.status) - 1
		}
		f.statusAt++
		_ = json.NewEncoder(w).Encode(f.status[i])
	case OpImportCatalogXML:
		_, _ = w.Write([]byte(f.accept))
	case OpGetLinkEntityAssociations:
		_, _ = w.Write([]byte(`["E-1","E-2"]`))
	default:
		_, _ = w.Write([]byte("true"))
	}
}

func (f *fakeImporter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spans)
}

func newService(t *testing.T, fake *fakeImporter, extra map[string]string) *Service {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	settings := map[string]string{
		config.KeyAPIKey:      "k",
		config.KeyEndpointURL: server.URL + "/api/",
		config.KeyRESTTimeout: "1",
	}
	for k, v := range extra {
		settings[k] = v
	}
	ep, err := config.ResolveEndpoint(settings)
	if err != nil {
		t.Fatalf("ResolveEndpoint() failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gateway.New("", logger)
	if err != nil {
		t.Fatalf("gateway.New() failed: %v", err)
	}
	client := remote.NewClient(ep, logger)
	return NewService(gw, client, logger).
		WithPoller(poll.NewEngine(client, poll.CatalogImportSchedule, logger).WithTimer(newInstantTimer))
}

func TestOperationsPostExpectedBodies(t *testing.T) {
	fake := newFakeImporter()
	svc := newService(t, fake, nil)
	ctx := context.Background()

	if !svc.DeleteCatalog(ctx, 42) {
		t.Error("DeleteCatalog returned false")
	}
	if !svc.DeleteCatalogNode(ctx, 7, 42) {
		t.Error("DeleteCatalogNode returned false")
	}
	if !svc.DeleteCatalogEntry(ctx, "SKU-1") {
		t.Error("DeleteCatalogEntry returned false")
	}
	if !svc.CheckAndMoveNodeIfNeeded(ctx, "N-1") {
		t.Error("CheckAndMoveNodeIfNeeded returned false")
	}
	if !svc.DeleteCompleted(ctx, DeleteCompleted{CatalogName: "Main", EventType: "ChannelDeleted"}) {
		t.Error("DeleteCompleted returned false")
	}

	want := map[string]string{
		OpDeleteCatalog:            "42",
		OpDeleteCatalogNode:        `{"catalogNodeId":7,"catalogId":42}`,
		OpDeleteCatalogEntry:       `"SKU-1"`,
		OpCheckAndMoveNodeIfNeeded: `"N-1"`,
		OpDeleteCompleted:          `{"catalogName":"Main","eventType":"ChannelDeleted"}`,
	}
	for op, body := range want {
		if got := fake.bodies[op]; got != body {
			t.Errorf("%s body = %s, want %s", op, got, body)
		}
	}
}

func TestFailureBecomesFalse(t *testing.T) {
	fake := newFakeImporter()
	fake.fail[OpUpdateEntryRelations] = http.StatusInternalServerError
	fake.fail[OpGetLinkEntityAssociations] = http.StatusNotFound
	svc := newService(t, fake, nil)

	if svc.UpdateEntryRelations(context.Background(), RelationUpdate{CatalogEntryID: "SKU-1"}) {
		t.Error("UpdateEntryRelations should report false on HTTP 500")
	}
	codes := svc.GetLinkEntityAssociations(context.Background(), "ProductItem", 9)
	if codes == nil || len(codes) != 0 {
		t.Errorf("GetLinkEntityAssociations = %#v, want empty slice", codes)
	}
	// the gateway must still be usable after failures
	if !svc.DeleteCatalog(context.Background(), 1) {
		t.Error("DeleteCatalog after failure returned false")
	}
}

func TestGetLinkEntityAssociations(t *testing.T) {
	fake := newFakeImporter()
	svc := newService(t, fake, nil)

	codes := svc.GetLinkEntityAssociations(context.Background(), "ProductItem", 9)
	if len(codes) != 2 || codes[0] != "E-1" || codes[1] != "E-2" {
		t.Errorf("codes = %v", codes)
	}
	if got := fake.bodies[OpGetLinkEntityAssociations]; got != `{"linkTypeId":"ProductItem","linkEntityId":9}` {
		t.Errorf("body = %s", got)
	}
}

func TestImportCatalog(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		status []string
		want   bool
		calls  int
	}{
		{"completed", "true", []string{"importing", "importing", "done"}, true, 4},
		{"remote error", "true", []string{"importing", "ERROR: bad xml"}, false, 3},
		{"not accepted", "false", []string{"done"}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeImporter()
			fake.accept = tt.accept
			fake.status = tt.status
			svc := newService(t, fake, nil)

			if got := svc.ImportCatalog(context.Background(), `C:\imports\catalog.zip`); got != tt.want {
				t.Errorf("ImportCatalog() = %v, want %v", got, tt.want)
			}
			if got := fake.calls(); got != tt.calls {
				t.Errorf("remote calls = %d, want %d", got, tt.calls)
			}
		})
	}
}

func TestKillSwitchSkipsNetwork(t *testing.T) {
	fake := newFakeImporter()
	svc := newService(t, fake, map[string]string{config.KeyEnabled: "false"})
	ctx := context.Background()

	if !svc.DeleteCatalog(ctx, 1) || !svc.ImportCatalog(ctx, "x.zip") ||
		!svc.UpdateLinkEntityData(ctx, LinkEntityUpdate{LinkEntityID: "1"}) ||
		!svc.ImportUpdateCompleted(ctx, ImportCompleted{CatalogName: "Main"}) {
		t.Error("disabled endpoint should report success")
	}
	if codes := svc.GetLinkEntityAssociations(ctx, "x", 1); len(codes) != 0 {
		t.Errorf("codes = %v, want empty", codes)
	}
	if fake.calls() != 0 {
		t.Errorf("remote calls = %d, want 0", fake.calls())
	}
}

func TestConcurrentOperationsNeverOverlap(t *testing.T) {
	fake := newFakeImporter()
	fake.holdFor = 15 * time.Millisecond
	svc := newService(t, fake, nil)
	ctx := context.Background()

	ops := []func() bool{
		func() bool { return svc.DeleteCatalog(ctx, 1) },
		func() bool { return svc.DeleteCatalogEntry(ctx, "A") },
		func() bool { return svc.UpdateEntryRelations(ctx, RelationUpdate{CatalogEntryID: "B"}) },
		func() bool { return svc.UpdateLinkEntityData(ctx, LinkEntityUpdate{LinkEntityID: "C"}) },
		func() bool { return svc.ImportUpdateCompleted(ctx, ImportCompleted{CatalogName: "Main"}) },
		func() bool { return svc.DeleteCatalogNode(ctx, 2, 1) },
	}

	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func(op func() bool) {
			defer wg.Done()
			if !op() {
				t.Error("operation returned false")
			}
		}(op)
	}
	wg.Wait()

	fake.mu.Lock()
	spans := append([]span(nil), fake.spans...)
	fake.mu.Unlock()

	if len(spans) != len(ops) {
		t.Fatalf("recorded %d calls, want %d", len(spans), len(ops))
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	for i := 1; i < len(spans); i++ {
		if spans[i].start.Before(spans[i-1].end) {
			t.Errorf("%s started at %s before %s ended at %s",
				spans[i].path, spans[i].start, spans[i-1].path, spans[i-1].end)
		}
	}
}
