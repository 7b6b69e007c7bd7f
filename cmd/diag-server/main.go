// Command diag-server is the stdio tool-transport entrypoint: it
// reads newline-delimited JSON tool-call requests from stdin and writes
// newline-delimited JSON responses to stdout, one line per request,
// in the order received. Framing of the wire protocol itself (the exact
// JSON-RPC/MCP envelope a given caller speaks) is an external concern;
// this loop owns only the boot sequence and the request/response shape
// described below.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tracymacding/starrocks-diag-engine/internal/analyzers/compaction"
	"github.com/tracymacding/starrocks-diag-engine/internal/analyzers/ingestion"
	"github.com/tracymacding/starrocks-diag-engine/internal/analyzers/memory"
	"github.com/tracymacding/starrocks-diag-engine/internal/analyzers/operations"
	"github.com/tracymacding/starrocks-diag-engine/internal/analyzers/queryperf"
	"github.com/tracymacding/starrocks-diag-engine/internal/config"
	"github.com/tracymacding/starrocks-diag-engine/internal/llm"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
	"github.com/tracymacding/starrocks-diag-engine/internal/pipeline"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
	"github.com/tracymacding/starrocks-diag-engine/internal/registry"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

// request is one stdio tool-call line. ID is optional; a caller that omits
// it gets one assigned so every response still correlates to a request.
type request struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// response is the corresponding reply line. Exactly one of Result/Error is
// set.
type response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults used if empty or missing)")
	flag.Parse()

	zapLogger, err := newZapLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "diag-server: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		sugar.Fatalw("failed to load config", "error", err)
	}

	p, err := probe.Open(cfg.Probe.DSN, cfg.Probe.BackendHTTPFmt)
	if err != nil {
		sugar.Fatalw("failed to open cluster probe", "error", err)
	}
	defer p.Close()

	holder := rules.NewHolder(rules.New(cfg.RuleOverrides))
	if *configPath != "" {
		watcher, err := rules.NewWatcher(*configPath, holder)
		if err != nil {
			sugar.Warnw("rule-override watcher unavailable, reload disabled", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := watcher.Start(ctx); err != nil {
				sugar.Warnw("rule-override watcher failed to start", "error", err)
			}
			defer watcher.Stop()
		}
	}
	lib := holder.Get()

	reg := registry.New(p, pipeline.Options{
		CollectParallelism: cfg.Pipeline.CollectParallelism,
		QueryTimeout:       cfg.QueryTimeout(),
		ToolCallTimeout:    cfg.ToolCallTimeout(),
	})

	ingestionExpert := ingestion.New(lib)
	if adapter, err := llm.NewAdapterFromEnv(); err != nil {
		sugar.Infow("llm adapter not configured, ingestion falls back to rule-based classification only", "reason", err)
	} else {
		sugar.Infow("llm adapter configured", "provider", adapter.Provider())
		ingestionExpert.WithLLMAdapter(adapter)
	}

	// operations is registered with the plain-text shape - its tool reads
	// like an ops status page a human skims directly; the other four feed
	// automation/LLM callers that want the typed analysis payload.
	reg.MustRegisterExpert(compaction.New(lib), registry.ShapeStructured)
	reg.MustRegisterExpert(ingestionExpert, registry.ShapeStructured)
	reg.MustRegisterExpert(memory.New(lib), registry.ShapeStructured)
	reg.MustRegisterExpert(queryperf.New(lib), registry.ShapeStructured)
	reg.MustRegisterExpert(operations.New(lib), registry.ShapeText)

	sugar.Infow("diag-server ready", "tools", reg.Names(), "experts", reg.Experts())
	logging.Boot("registered %d tools across %d experts", reg.Count(), len(reg.Experts()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serve(ctx, reg, os.Stdin, os.Stdout, sugar)
}

// serve drives the request/response loop until in is exhausted or ctx is
// cancelled. Each line is handled independently - a malformed or failing
// request yields an error response, never a crash of the loop.
func serve(ctx context.Context, reg *registry.Registry, in io.Reader, out io.Writer, sugar *zap.SugaredLogger) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			sugar.Info("shutdown signal received, stopping request loop")
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{ID: uuid.NewString(), Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		resp := handle(ctx, reg, req)
		if err := enc.Encode(resp); err != nil {
			sugar.Errorw("failed to write response", "id", req.ID, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		sugar.Errorw("stdin read error", "error", err)
	}
}

func handle(ctx context.Context, reg *registry.Registry, req request) response {
	callCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	result, err := reg.Execute(callCtx, req.Tool, req.Args)
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: result}
}

func newZapLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
