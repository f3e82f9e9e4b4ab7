// Команда loadtest нагружает StorefrontService сценариями корзины и оформления заказа.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/digidine/internal/service/grpc"
)

type loadMode string

const (
	modeCart            loadMode = "cart"
	modeCheckout        loadMode = "checkout"
	modeCheckoutAdvance loadMode = "checkout-advance"
)

// advanceSteps — число переходов от cooking до delivered.
const advanceSteps = 2

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	dishes      int
	dishPrefix  string
	price       float64
	address     string
	outputPath  string
}

// storefrontCaller — часть grpcsvc.Client, нужная сценариям.
type storefrontCaller interface {
	Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error)
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCart), "load mode: cart | checkout | checkout-advance")
	fs.IntVar(&cfg.dishes, "dishes", 10, "number of distinct dish ids to rotate through")
	fs.StringVar(&cfg.dishPrefix, "dish-prefix", "load-dish", "dish id prefix")
	fs.Float64Var(&cfg.price, "price", 250, "dish price")
	fs.StringVar(&cfg.address, "address", "221B Baker Street", "delivery address for checkout")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.dishes <= 0:
		return cfg, errors.New("dishes must be > 0")
	case cfg.price <= 0:
		return cfg, errors.New("price must be > 0")
	case strings.TrimSpace(cfg.dishPrefix) == "":
		return cfg, errors.New("dish-prefix is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCart, modeCheckout, modeCheckoutAdvance:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	callers := make([]storefrontCaller, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		callers = append(callers, grpcsvc.NewClient(conn))
	}

	result := run(cfg, callers)
	for _, conn := range conns {
		_ = conn.Close()
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run раздаёт сценарии воркерам и собирает отчёт. Воркеры распределяются по
// callers по кругу.
func run(cfg config, callers []storefrontCaller) report {
	startedAt := time.Now()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(caller storefrontCaller) {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(caller, cfg, index, col)
			}
		}(callers[workerID%len(callers)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(cfg.mode, startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario выполняет один сценарий. Корзина общая для всех воркеров,
// поэтому Checkout может застать её уже опустошённой соседом: такой
// FailedPrecondition не считается провалом сценария.
func runScenario(caller storefrontCaller, cfg config, index int, col *collector) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMetric, time.Since(scenarioStart), scenarioCode)
	}()

	item := map[string]any{
		"id":    fmt.Sprintf("%s-%d", cfg.dishPrefix, index%cfg.dishes),
		"name":  fmt.Sprintf("Load dish %d", index%cfg.dishes),
		"price": cfg.price,
	}
	if _, err := callMethod(caller, cfg.timeout, "AddCartItem", item, col); err != nil {
		scenarioCode = status.Code(err)
		return err
	}

	if cfg.mode == modeCart {
		if _, err := callMethod(caller, cfg.timeout, "GetCart", map[string]any{}, col); err != nil {
			scenarioCode = status.Code(err)
			return err
		}
		return nil
	}

	resp, err := callMethod(caller, cfg.timeout, "Checkout", map[string]any{"address": cfg.address}, col)
	if status.Code(err) == codes.FailedPrecondition {
		return nil
	}
	if err != nil {
		scenarioCode = status.Code(err)
		return err
	}
	if cfg.mode == modeCheckout {
		return nil
	}

	orderID, err := orderIDFrom(resp)
	if err != nil {
		scenarioCode = codes.Internal
		return err
	}
	for step := 0; step < advanceSteps; step++ {
		if _, err := callMethod(caller, cfg.timeout, "AdvanceOrder", map[string]any{"id": orderID}, col); err != nil {
			scenarioCode = status.Code(err)
			return err
		}
	}
	return nil
}

func callMethod(caller storefrontCaller, timeout time.Duration, method string, req map[string]any, col *collector) (map[string]any, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := caller.Call(ctx, method, req)
	col.record(method, time.Since(start), status.Code(err))
	return resp, err
}

// orderIDFrom достаёт order.id из ответа Checkout. Struct передаёт числа как float64.
func orderIDFrom(resp map[string]any) (float64, error) {
	order, ok := resp["order"].(map[string]any)
	if !ok {
		return 0, errors.New("checkout response has no order")
	}
	id, ok := order["id"].(float64)
	if !ok || id <= 0 {
		return 0, errors.New("checkout response returned empty order id")
	}
	return id, nil
}
