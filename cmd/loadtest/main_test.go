package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/digidine/internal/service/addresses"
	"github.com/vladislavdragonenkov/digidine/internal/service/cart"
	"github.com/vladislavdragonenkov/digidine/internal/service/favorites"
	grpcsvc "github.com/vladislavdragonenkov/digidine/internal/service/grpc"
	"github.com/vladislavdragonenkov/digidine/internal/service/orders"
	"github.com/vladislavdragonenkov/digidine/internal/sidebar"
	"github.com/vladislavdragonenkov/digidine/internal/storage/memory"
	"github.com/vladislavdragonenkov/digidine/internal/toast"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls []string
	fn    func(method string, req map[string]any) (map[string]any, error)
}

func (f *fakeCaller) Call(_ context.Context, method string, req map[string]any, _ ...grpc.CallOption) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
	if f.fn == nil {
		return map[string]any{}, nil
	}
	return f.fn(method, req)
}

func (f *fakeCaller) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func checkoutResponse(id float64) map[string]any {
	return map[string]any{"order": map[string]any{"id": id, "status": "cooking"}}
}

func testConfig(mode loadMode) config {
	return config{
		total:       1,
		concurrency: 1,
		connections: 1,
		timeout:     time.Second,
		mode:        mode,
		dishes:      3,
		dishPrefix:  "dish",
		price:       100,
		address:     "Main st",
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []string{"cart", "checkout", " checkout-advance "} {
		if _, err := parseMode(mode); err != nil {
			t.Fatalf("parseMode(%q): %v", mode, err)
		}
	}
	if _, err := parseMode("create-pay"); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.mode != modeCart || cfg.total != 400 || cfg.totalSet || cfg.timeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg, err = parseConfig([]string{"-mode", "checkout-advance", "-total", "10", "-duration", "1m", "-dishes", "2"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.mode != modeCheckoutAdvance || !cfg.totalSet || cfg.duration != time.Minute || cfg.dishes != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	invalid := map[string][]string{
		"mode":                     {"-mode", "pay"},
		"negative duration":        {"-duration", "-1s"},
		"zero total":               {"-total", "0"},
		"zero total with duration": {"-total", "0", "-duration", "1s"},
		"concurrency":              {"-concurrency", "0"},
		"connections":              {"-connections", "0"},
		"timeout":                  {"-timeout", "0s"},
		"dishes":                   {"-dishes", "0"},
		"price":                    {"-price", "0"},
		"dish prefix":              {"-dish-prefix", " "},
		"bad duration":             {"-duration", "soon"},
	}
	for name, args := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfig(args, &bytes.Buffer{}); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestDispatchJobs(t *testing.T) {
	drain := func(cfg config) []int {
		jobs := make(chan int, 16)
		go dispatchJobs(jobs, cfg)
		var got []int
		for id := range jobs {
			got = append(got, id)
		}
		return got
	}

	if got := drain(config{total: 5}); len(got) != 5 || got[4] != 4 {
		t.Fatalf("count mode: %v", got)
	}
	if got := drain(config{total: 3, totalSet: true, duration: time.Minute}); len(got) != 3 {
		t.Fatalf("duration mode with total: %v", got)
	}

	jobs := make(chan int)
	done := make(chan struct{})
	go func() {
		dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatchJobs did not stop after duration")
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record("AddCartItem", 2*time.Millisecond, codes.OK)
	col.record("AddCartItem", 4*time.Millisecond, codes.Unavailable)
	col.record(scenarioMetric, 10*time.Millisecond, codes.OK)
	col.record(scenarioMetric, 20*time.Millisecond, codes.Unavailable)

	add, ok := col.snapshot("AddCartItem")
	if !ok || add.Calls != 2 || add.Failed != 1 || add.Codes["Unavailable"] != 1 || add.ErrorRate != 0.5 {
		t.Fatalf("unexpected snapshot: %+v", add)
	}
	if _, ok := col.snapshot("Checkout"); ok {
		t.Fatal("expected no Checkout stats")
	}

	result := col.buildReport(modeCart, time.Now(), 2*time.Second)
	if result.Mode != "cart" || result.TotalScenarios != 2 || result.FailedScenarios != 1 || result.RPS != 1 {
		t.Fatalf("unexpected report: %+v", result)
	}
	if result.ScenarioLatencyMs.Max != 20 || result.ScenarioLatencyMs.Min != 10 {
		t.Fatalf("unexpected scenario latency: %+v", result.ScenarioLatencyMs)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := percentile([]float64{1, 2, 3, 4}, 50); got != 2.5 {
		t.Fatalf("percentile: %v", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Fatalf("single percentile: %v", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("empty percentile: %v", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio: %v", got)
	}
	if got := buildLatencySummary([]float64{3, 1, 2}); got.Avg != 2 || got.Min != 1 || got.Max != 3 {
		t.Fatalf("summary: %+v", got)
	}

	cases := map[string]config{
		"count:5":                   {total: 5},
		"duration:1m0s":             {duration: time.Minute},
		"duration:1m0s,max-total:9": {duration: time.Minute, total: 9, totalSet: true},
	}
	for want, cfg := range cases {
		if got := runTarget(cfg); got != want {
			t.Fatalf("runTarget = %q, want %q", got, want)
		}
	}
}

func TestWriteJSONReport(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := writeJSONReport("report.json", report{Mode: "checkout", TotalScenarios: 3}); err != nil {
		t.Fatalf("write report: %v", err)
	}
	raw, err := os.ReadFile("report.json")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Mode != "checkout" || decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected report: %+v", decoded)
	}

	for _, bad := range []string{".", "/", "..", filepath.Join("..", "out.json")} {
		if err := writeJSONReport(bad, report{}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRunScenario(t *testing.T) {
	t.Run("cart", func(t *testing.T) {
		caller := &fakeCaller{}
		col := newCollector()
		if err := runScenario(caller, testConfig(modeCart), 4, col); err != nil {
			t.Fatalf("scenario: %v", err)
		}
		if got := strings.Join(caller.methods(), ","); got != "AddCartItem,GetCart" {
			t.Fatalf("calls = %s", got)
		}
	})

	t.Run("checkout advance", func(t *testing.T) {
		var advanced []any
		caller := &fakeCaller{fn: func(method string, req map[string]any) (map[string]any, error) {
			switch method {
			case "AddCartItem":
				if req["id"] != "dish-1" || req["price"] != 100.0 {
					t.Errorf("unexpected item: %v", req)
				}
			case "Checkout":
				if req["address"] != "Main st" {
					t.Errorf("unexpected checkout: %v", req)
				}
				return checkoutResponse(42), nil
			case "AdvanceOrder":
				advanced = append(advanced, req["id"])
			}
			return map[string]any{}, nil
		}}
		col := newCollector()
		if err := runScenario(caller, testConfig(modeCheckoutAdvance), 4, col); err != nil {
			t.Fatalf("scenario: %v", err)
		}
		if len(advanced) != advanceSteps || advanced[0] != 42.0 {
			t.Fatalf("advanced = %v", advanced)
		}
		result := col.buildReport(modeCheckoutAdvance, time.Now(), time.Second)
		if result.Methods["AdvanceOrder"].Calls != advanceSteps || result.SuccessScenarios != 1 {
			t.Fatalf("unexpected report: %+v", result)
		}
	})

	t.Run("drained cart is not a failure", func(t *testing.T) {
		caller := &fakeCaller{fn: func(method string, _ map[string]any) (map[string]any, error) {
			if method == "Checkout" {
				return nil, status.Error(codes.FailedPrecondition, "cart is empty")
			}
			return map[string]any{}, nil
		}}
		col := newCollector()
		if err := runScenario(caller, testConfig(modeCheckoutAdvance), 0, col); err != nil {
			t.Fatalf("scenario: %v", err)
		}
		result := col.buildReport(modeCheckoutAdvance, time.Now(), time.Second)
		if result.FailedScenarios != 0 || result.Methods["Checkout"].Failed != 1 {
			t.Fatalf("unexpected report: %+v", result)
		}
	})

	t.Run("rpc failure", func(t *testing.T) {
		caller := &fakeCaller{fn: func(string, map[string]any) (map[string]any, error) {
			return nil, status.Error(codes.Unavailable, "down")
		}}
		col := newCollector()
		if err := runScenario(caller, testConfig(modeCheckout), 0, col); status.Code(err) != codes.Unavailable {
			t.Fatalf("expected Unavailable, got %v", err)
		}
		scenario, _ := col.snapshot(scenarioMetric)
		if scenario.Codes["Unavailable"] != 1 {
			t.Fatalf("unexpected scenario codes: %+v", scenario.Codes)
		}
	})

	t.Run("missing order id", func(t *testing.T) {
		caller := &fakeCaller{fn: func(method string, _ map[string]any) (map[string]any, error) {
			if method == "Checkout" {
				return map[string]any{"order": map[string]any{}}, nil
			}
			return map[string]any{}, nil
		}}
		col := newCollector()
		if err := runScenario(caller, testConfig(modeCheckoutAdvance), 0, col); err == nil {
			t.Fatal("expected error")
		}
		scenario, _ := col.snapshot(scenarioMetric)
		if scenario.Codes["Internal"] != 1 {
			t.Fatalf("unexpected scenario codes: %+v", scenario.Codes)
		}
	})
}

func TestOrderIDFrom(t *testing.T) {
	if id, err := orderIDFrom(checkoutResponse(7)); err != nil || id != 7 {
		t.Fatalf("orderIDFrom = %v, %v", id, err)
	}
	if _, err := orderIDFrom(map[string]any{}); err == nil {
		t.Fatal("expected error without order")
	}
}

func TestPrintReport(t *testing.T) {
	result := report{
		Mode:           "cart",
		TotalScenarios: 2,
		Methods: map[string]methodReport{
			"GetCart":      {Calls: 2, Success: 2},
			"AddCartItem":  {Calls: 2, Success: 1, Failed: 1, ErrorRate: 0.5},
			scenarioMetric: {Calls: 2},
		},
	}
	var out bytes.Buffer
	printReport(&out, result, config{total: 2})

	text := out.String()
	if !strings.Contains(text, "mode=cart run=count:2") {
		t.Fatalf("missing header: %s", text)
	}
	addIdx := strings.Index(text, "AddCartItem:")
	getIdx := strings.Index(text, "GetCart:")
	if addIdx < 0 || getIdx < 0 || addIdx > getIdx {
		t.Fatalf("methods must be sorted: %s", text)
	}
	if strings.Contains(text, scenarioMetric+":") {
		t.Fatalf("scenario must not be listed as a method: %s", text)
	}
}

func TestRun_AgainstStorefront(t *testing.T) {
	listener := bufconn.Listen(1024 * 1024)
	store := memory.NewStore("loadtest")
	toasts := toast.NewQueue()
	t.Cleanup(toasts.Close)

	cartSvc := cart.NewService(store)
	ordersSvc := orders.NewService(store)
	addressSvc := addresses.NewService(store, nil, nil)
	restaurants := favorites.NewRestaurants(store, nil)
	dishes := favorites.NewDishes(store, nil)
	service := grpcsvc.NewStorefrontService(grpcsvc.Deps{
		Cart:        cartSvc,
		Orders:      ordersSvc,
		Addresses:   addressSvc,
		Restaurants: restaurants,
		Dishes:      dishes,
		Sidebar: sidebar.NewController(sidebar.Deps{
			Cart:        cartSvc,
			Orders:      ordersSvc,
			Addresses:   addressSvc,
			Restaurants: restaurants,
			Dishes:      dishes,
			Store:       store,
			Notifier:    toasts,
		}),
		Toasts: toasts,
	}, nil)

	server := grpc.NewServer()
	service.Register(server)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	cfg := testConfig(modeCheckoutAdvance)
	cfg.total = 5
	result := run(cfg, []storefrontCaller{grpcsvc.NewClient(conn)})

	if result.TotalScenarios != 5 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected report: %+v", result)
	}
	if got := result.Methods["AdvanceOrder"].Success; got != 5*advanceSteps {
		t.Fatalf("AdvanceOrder success = %d", got)
	}

	active, err := ordersSvc.ActiveOrders(context.Background())
	if err != nil {
		t.Fatalf("active orders: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected every order delivered, got %d active", len(active))
	}
}

var _ storefrontCaller = (*grpcsvc.Client)(nil)

func TestFakeCallerErrorsArePropagated(t *testing.T) {
	boom := errors.New("boom")
	caller := &fakeCaller{fn: func(string, map[string]any) (map[string]any, error) { return nil, boom }}
	col := newCollector()
	if _, err := callMethod(caller, time.Second, "GetCart", nil, col); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	stats, _ := col.snapshot("GetCart")
	if stats.Codes["Unknown"] != 1 {
		t.Fatalf("plain errors must be recorded as Unknown: %+v", stats.Codes)
	}
}
