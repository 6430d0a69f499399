package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	aicore "github.com/nevindra/aicore"
	"github.com/nevindra/aicore/checkpoint"
	"github.com/nevindra/aicore/internal/config"
	"github.com/nevindra/aicore/internal/gateway"
	"github.com/nevindra/aicore/memory"
	"github.com/nevindra/aicore/observer"
	"github.com/nevindra/aicore/provider/lmstudio"
	"github.com/nevindra/aicore/store/postgres"
	"github.com/nevindra/aicore/store/sqlite"
	"github.com/nevindra/aicore/tools/browser"
	"github.com/nevindra/aicore/tools/echo"
	"github.com/nevindra/aicore/tools/file"
	"github.com/nevindra/aicore/tools/media"
	"github.com/nevindra/aicore/tools/ping"
	"github.com/nevindra/aicore/tools/terminal"
)

func main() {
	// 1. Load config
	cfg := config.Load(os.Getenv("AICORE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 2. Observability (optional)
	var tracer aicore.Tracer
	var inst *observer.Instruments
	if cfg.Observe.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(context.Background())
		if err != nil {
			logger.Warn("observer init failed, continuing without", "error", err)
		} else {
			tracer = observer.NewTracer()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	// 3. LLM client
	baseURL, modelID := cfg.LLM.BaseURL, cfg.LLM.ModelID
	if baseURL == "" || modelID == "" {
		rURL, rModel := lmstudio.ResolveConfig()
		if baseURL == "" {
			baseURL = rURL
		}
		if modelID == "" {
			modelID = rModel
		}
	}
	llm := lmstudio.New(baseURL, modelID,
		lmstudio.WithTimeout(time.Duration(cfg.LLM.TimeoutSec)*time.Second),
		lmstudio.WithLogger(logger))

	provider := aicore.WithRetry(llm, aicore.RetryLogger(logger))
	if inst != nil {
		provider = observer.WrapProvider(provider, modelID, inst)
	}

	// 4. Stores
	root := cfg.Paths.DataRoot
	convLog := memory.New(filepath.Join(root, cfg.Paths.MemoryDir), memory.WithLogger(logger))

	var index aicore.Index
	if cfg.Paths.PostgresURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Paths.PostgresURL)
		if err != nil {
			log.Fatalf("postgres pool: %v", err)
		}
		defer pool.Close()
		index = postgres.New(pool, postgres.WithLogger(logger))
	} else {
		index = sqlite.New(filepath.Join(root, cfg.Paths.RAGPath), sqlite.WithLogger(logger))
	}
	if err := index.Init(context.Background()); err != nil {
		log.Fatalf("semantic index init: %v", err)
	}
	defer index.Close()

	checkpoints := checkpoint.New(filepath.Join(root, cfg.Paths.PlansDir), checkpoint.WithLogger(logger))

	// 5. Tool router
	router := aicore.NewRouter(aicore.WithRouterLogger(logger), aicore.WithRouterTracer(tracer))
	workspace := filepath.Join(root, cfg.Paths.Workspace)
	register := func(name string, p aicore.ToolProvider) {
		if inst != nil {
			p = observer.WrapToolProvider(name, p, inst)
		}
		router.Register(name, p)
	}
	register("ping", ping.New())
	register("echo", echo.New())
	register("browser", browser.New(browser.WithLogger(logger)))
	register("terminal", terminal.New(workspace,
		terminal.WithLogger(logger), terminal.WithAllowlist(cfg.Tools.ExecAllowlist)))
	register("file", file.New(workspace, file.WithLogger(logger)))
	register("audio", media.NewAudio())
	register("video", media.NewVideo())

	// 6. Context assembler + orchestrator
	asm := aicore.NewAssembler(convLog, index,
		aicore.WithAssemblerLogger(logger),
		aicore.WithEphemeralBudget(cfg.Context.EphemeralBudget),
		aicore.WithEpisodicTurns(cfg.Context.EpisodicTurns),
		aicore.WithRAGHits(cfg.Context.RAGHits),
		aicore.WithRAGSnippetChars(cfg.Context.RAGSnippetChars))

	orch := aicore.NewOrchestrator(convLog, asm, router, provider, checkpoints,
		aicore.WithOrchestratorLogger(logger),
		aicore.WithOrchestratorTracer(tracer),
		aicore.WithBatchSize(cfg.Planner.BatchSize))

	var handler gateway.ChatHandler = orch
	if inst != nil {
		handler = observer.WrapTurnHandler(orch, inst)
	}

	// 7. Warmup
	warmup := lmstudio.NewWarmup()
	warmup.Start(llm)

	// 8. Front door
	srv := gateway.New(gateway.Config{
		BindAddr:        cfg.Gateway.BindAddr,
		MaxBodyBytes:    cfg.Gateway.MaxBodyBytes,
		MaxMessageChars: cfg.Gateway.MaxMessageChars,
		RateLimit:       cfg.Gateway.RateLimitPerMin,
		RateWindow:      time.Duration(cfg.Gateway.RateLimitWindowS) * time.Second,
		MaxChatInflight: cfg.Gateway.MaxChatInflight,
		LogsDir:         filepath.Join(root, cfg.Paths.LogsDir),
	}, handler, llm,
		gateway.WithLogger(logger),
		gateway.WithWarmupSource(func() gateway.WarmupSnapshot {
			st := warmup.Status()
			return gateway.WarmupSnapshot{
				Started: st.Started,
				Done:    st.Done,
				OK:      st.OK,
				MS:      st.MS,
				Error:   st.Error,
			}
		}))

	// 9. Run until SIGINT/SIGTERM, then drain
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("gateway: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
