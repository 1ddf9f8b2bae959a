// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package app assembles every pipeline stage (C1 embedding through C12
// settings) into one running service and exposes its HTTP perimeter.
//
// # Architecture
//
// New wires components strictly bottom-up: backends (embedding, LLM,
// vector store) first, then the stages that depend on them (cache, query
// transform, rerank, retrieval, answer generation), then the
// cross-cutting services that ride on top of the pipeline (conversation
// memory, prefetch, settings hot-reload, TTL cleanup). Engine owns every
// handle and is responsible for shutting all of them down in Close.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jinterlante1206/tacticalrag/internal/answer"
	"github.com/jinterlante1206/tacticalrag/internal/config"
	"github.com/jinterlante1206/tacticalrag/internal/conversation"
	"github.com/jinterlante1206/tacticalrag/internal/embedcache"
	"github.com/jinterlante1206/tacticalrag/internal/embedding"
	"github.com/jinterlante1206/tacticalrag/internal/httpapi"
	"github.com/jinterlante1206/tacticalrag/internal/llmclient"
	"github.com/jinterlante1206/tacticalrag/internal/observability"
	"github.com/jinterlante1206/tacticalrag/internal/prefetch"
	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/rerank"
	"github.com/jinterlante1206/tacticalrag/internal/resultcache"
	"github.com/jinterlante1206/tacticalrag/internal/retrieval"
	"github.com/jinterlante1206/tacticalrag/internal/ttl"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

// Config holds this process's static deployment configuration - the knobs
// that are fixed for the process's lifetime. Runtime-tunable pipeline
// behavior lives in config.Settings (C12) instead, reloaded without a
// restart.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// EmbeddingBackend selects C1's implementation: "llamacpp" or "openai".
	EmbeddingBackend string

	// EmbeddingServiceURLBase is the llama.cpp embedding server's base
	// URL, used when EmbeddingBackend is "llamacpp".
	EmbeddingServiceURLBase string

	// EmbeddingDimension is the vector dimension C1 must produce; a
	// mismatch at startup is fatal.
	EmbeddingDimension int

	// LLMBackend selects C3's implementation: "llamacpp", "ollama", or
	// "openai".
	LLMBackend string

	// LLMQueueDepth bounds how many callers may wait on the single LLM
	// worker before being fast-failed with ErrBusy.
	LLMQueueDepth int

	// WeaviateURL is the vector database endpoint. Required - this
	// service has no in-memory fallback store.
	WeaviateURL string

	// EmbedCacheDir is the on-disk badger directory backing C4 (embedding
	// cache) and C9's L2 layer. Empty means in-memory only, appropriate
	// for tests and ephemeral runs.
	EmbedCacheDir string

	// SettingsPath is the YAML file C12 loads and hot-reloads runtime
	// Settings from.
	SettingsPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string

	// EnableTracing turns on the OTLP trace exporter.
	EnableTracing bool

	// EnableMetrics turns on the Prometheus metrics endpoint.
	EnableMetrics bool

	// TTLCleanupInterval is how often the background TTL scheduler runs.
	TTLCleanupInterval time.Duration

	// TTLLogPath is the TTL audit log's hash-chained file.
	TTLLogPath string

	// TTLEnabled turns on the background TTL cleanup scheduler.
	TTLEnabled bool
}

// DefaultConfig fills in every field Config needs to run against a local
// stack (llama.cpp + Weaviate on localhost): a zero value means use a
// sensible default rather than requiring a fully-populated Config from
// callers.
func DefaultConfig() Config {
	return Config{
		Port:                    12210,
		GinMode:                 "release",
		EmbeddingBackend:        "llamacpp",
		EmbeddingServiceURLBase: "http://localhost:8081",
		EmbeddingDimension:      768,
		LLMBackend:              "llamacpp",
		LLMQueueDepth:           32,
		WeaviateURL:             "http://localhost:8080",
		EmbedCacheDir:           "",
		SettingsPath:            "./config/settings.yaml",
		OTelEndpoint:            "tacticalrag-otel-collector:4317",
		EnableTracing:           false,
		EnableMetrics:           true,
		TTLCleanupInterval:      1 * time.Hour,
		TTLLogPath:              "./logs/ttl_cleanup.log",
		TTLEnabled:              true,
	}
}

func applyConfigDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.GinMode == "" {
		cfg.GinMode = defaults.GinMode
	}
	if cfg.EmbeddingBackend == "" {
		cfg.EmbeddingBackend = defaults.EmbeddingBackend
	}
	if cfg.EmbeddingServiceURLBase == "" {
		cfg.EmbeddingServiceURLBase = defaults.EmbeddingServiceURLBase
	}
	if cfg.EmbeddingDimension == 0 {
		cfg.EmbeddingDimension = defaults.EmbeddingDimension
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = defaults.LLMBackend
	}
	if cfg.LLMQueueDepth == 0 {
		cfg.LLMQueueDepth = defaults.LLMQueueDepth
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = defaults.WeaviateURL
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = defaults.SettingsPath
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = defaults.OTelEndpoint
	}
	if cfg.TTLCleanupInterval == 0 {
		cfg.TTLCleanupInterval = defaults.TTLCleanupInterval
	}
	if cfg.TTLLogPath == "" {
		cfg.TTLLogPath = defaults.TTLLogPath
	}
	return cfg
}

// Engine owns every component handle (C1-C12) plus the HTTP perimeter that
// fronts them. It is safe for concurrent use once New returns; all fields
// are wired once and never replaced, except through the config.Store's own
// atomic swap.
type Engine struct {
	config Config

	settingsStore   *config.Store
	settingsWatcher *config.Watcher

	embedder       embedding.Embedder
	llmWorker      *llmclient.Worker
	weaviateClient *weaviate.Client
	vectorStore    *vectorstore.WeaviateStore

	embedDB     *embedcache.DB
	embedCache  *embedcache.Cache
	resultCache *resultcache.Cache

	transformer *querytransform.Transformer
	reranker    rerank.Reranker
	retriever   *retrieval.Retriever
	generator   *answer.Generator
	memory      conversation.Memory
	prefetcher  *prefetch.Prefetcher

	ttlScheduler ttl.TTLScheduler
	ttlLogger    ttl.TTLLogger

	router           *gin.Engine
	tracerCleanup    func(context.Context)
	backgroundCancel context.CancelFunc
}

// New assembles every component and returns a ready-to-run Engine. A
// failure to load settings, initialize the tracer, the vector store, the
// LLM/embedding backends, or the caches is fatal to construct - the
// settings file watcher and TTL scheduler degrade to "running without" on
// failure, since neither blocks answering queries.
func New(cfg Config) (*Engine, error) {
	cfg = applyConfigDefaults(cfg)
	gin.SetMode(cfg.GinMode)

	e := &Engine{config: cfg}
	ctx := context.Background()

	settings, err := config.Load(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	e.settingsStore = config.NewStore(settings)
	if watcher, err := config.NewWatcher(cfg.SettingsPath, e.settingsStore); err != nil {
		slog.Warn("settings file watcher unavailable, hot-reload disabled", "error", err)
	} else {
		e.settingsWatcher = watcher
	}

	cleanup, err := e.initTracer()
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	e.tracerCleanup = cleanup

	if cfg.EnableMetrics {
		observability.InitMetrics()
	}

	if err := e.initWeaviate(); err != nil {
		return nil, fmt.Errorf("init weaviate: %w", err)
	}

	if err := e.initEmbedder(ctx); err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	if err := e.initLLM(); err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}

	if err := e.initCaches(); err != nil {
		return nil, fmt.Errorf("init caches: %w", err)
	}

	e.initPipeline(settings)

	if cfg.TTLEnabled {
		if err := e.initTTLScheduler(); err != nil {
			slog.Warn("TTL scheduler unavailable, continuing without background cleanup", "error", err)
		}
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	e.backgroundCancel = cancel
	e.prefetcher.Start(bgCtx)
	if e.settingsWatcher != nil {
		e.settingsWatcher.Start(bgCtx)
	}

	e.initRouter()

	return e, nil
}

// generateFunc adapts llmWorker's Generate call to the narrow signature
// every pipeline-stage GenerateFunc type shares, so each package can take
// a plain function value instead of importing internal/llmclient.
func (e *Engine) generateFunc(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	temp := temperature
	params := llmclient.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
	return e.llmWorker.Generate(ctx, prompt, params)
}

// streamingGenerateFunc adapts llmWorker's ChatStream call to answer's
// token-callback GenerateFunc shape.
func (e *Engine) streamingGenerateFunc(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
	temp := temperature
	params := llmclient.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
	messages := []llmclient.Message{{Role: "user", Content: prompt}}

	var full strings.Builder
	err := e.llmWorker.ChatStream(ctx, messages, params, func(event llmclient.StreamEvent) error {
		switch event.Type {
		case llmclient.StreamEventToken:
			full.WriteString(event.Content)
			return onToken(event.Content)
		case llmclient.StreamEventError:
			return fmt.Errorf("llm stream error: %s", event.Error)
		}
		return nil
	})
	return full.String(), err
}

// conversationGenerateFunc adapts llmWorker's Generate call to C11's
// single-turn GenerateFunc (no explicit temperature parameter - C11 always
// summarizes at a fixed low temperature).
func (e *Engine) conversationGenerateFunc(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return e.generateFunc(ctx, prompt, maxTokens, 0.2)
}

func (e *Engine) initEmbedder(ctx context.Context) error {
	var embedder embedding.Embedder
	var err error

	switch e.config.EmbeddingBackend {
	case "openai":
		embedder, err = embedding.NewOpenAIEmbedder(ctx, e.config.EmbeddingDimension)
		slog.Info("using OpenAI embedding backend")
	default:
		embedder, err = embedding.NewLlamaCppEmbedder(ctx, e.config.EmbeddingServiceURLBase, e.config.EmbeddingDimension)
		slog.Info("using llama.cpp embedding backend", "url", e.config.EmbeddingServiceURLBase)
	}
	if err != nil {
		return err
	}
	e.embedder = embedder
	return nil
}

func (e *Engine) initLLM() error {
	var backend llmclient.Client
	var err error

	switch e.config.LLMBackend {
	case "ollama":
		backend = llmclient.NewOllamaClient(10)
		slog.Info("using Ollama LLM backend")
	case "openai":
		backend, err = llmclient.NewOpenAIClient()
		slog.Info("using OpenAI LLM backend")
	default:
		backend, err = llmclient.NewLlamaCppClient()
		slog.Info("using llama.cpp LLM backend")
	}
	if err != nil {
		return err
	}
	e.llmWorker = llmclient.NewWorker(backend, e.config.LLMQueueDepth)
	return nil
}

func (e *Engine) initWeaviate() error {
	weaviateURL := strings.Trim(e.config.WeaviateURL, "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: parsedURL.Host, Scheme: parsedURL.Scheme})
	if err != nil {
		return fmt.Errorf("create weaviate client: %w", err)
	}
	e.weaviateClient = client
	e.vectorStore = vectorstore.NewWeaviateStore(client)
	slog.Info("weaviate client initialized", "url", weaviateURL)
	return nil
}

func (e *Engine) initCaches() error {
	var dbCfg embedcache.Config
	if e.config.EmbedCacheDir == "" {
		dbCfg = embedcache.InMemoryConfig()
	} else {
		dbCfg = embedcache.DefaultConfig()
		dbCfg.Path = e.config.EmbedCacheDir
	}

	db, err := embedcache.OpenDB(dbCfg)
	if err != nil {
		return fmt.Errorf("open embedding cache db: %w", err)
	}
	e.embedDB = db
	e.embedCache = embedcache.NewCache(db, "v1", 24*time.Hour)

	resultCache, err := resultcache.NewCache(db, resultcache.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open result cache: %w", err)
	}
	e.resultCache = resultCache
	return nil
}

// initPipeline wires C5-C11 around the backends and caches initEmbedder/
// initLLM/initCaches already built. settings seeds every stage's Config
// once, here. Later Settings changes (settings API or file reload) replace
// the config.Store snapshot that Engine.Settings() returns, but the stage
// objects built here are not rebuilt and keep the values they were
// constructed with.
func (e *Engine) initPipeline(settings config.Settings) {
	e.transformer = querytransform.NewTransformer(e.generateFunc, querytransform.DefaultConfig())

	rerankCfg := rerank.DefaultConfig()
	rerankCfg.DefaultTopR = settings.Reranking.LLMRerankTopN
	e.reranker = rerank.NewLLMReranker(e.generateFunc, rerankCfg)

	retrievalCfg := retrieval.DefaultConfig()
	retrievalCfg.TopK = settings.Retrieval.FinalK
	retrievalCfg.RRFConstant = settings.Retrieval.RRFK
	retrievalCfg.EnableRerank = settings.Reranking.EnableLLMReranking
	e.retriever = retrieval.NewRetriever(e.vectorStore, e.embedder, e.embedCache, e.transformer, e.reranker, retrievalCfg)

	answerCfg := answer.DefaultConfig()
	answerCfg.Temperature = float32(settings.LLM.Temperature)
	answerCfg.MaxTokens = settings.LLM.MaxTokens
	e.generator = answer.NewGenerator(e.streamingGenerateFunc, answerCfg)

	e.memory = conversation.NewBoundedMemory(conversation.DefaultMemoryConfig(), e.conversationGenerateFunc)

	prefetchCfg := prefetch.DefaultConfig()
	prefetchCfg.MaxConcurrentPrefetches = settings.Prefetch.MaxConcurrent
	prefetchCfg.PredictionWindowSize = settings.Prefetch.WindowSize
	e.prefetcher = prefetch.New(e.embedder, prefetchCfg)
}

func (e *Engine) initTTLScheduler() error {
	ttlService := ttl.NewTTLService(e.weaviateClient)

	logger, err := ttl.NewTTLLogger(e.config.TTLLogPath)
	if err != nil {
		slog.Warn("TTL audit logger unavailable, continuing without it", "path", e.config.TTLLogPath, "error", err)
	} else {
		e.ttlLogger = logger
	}

	schedulerCfg := ttl.DefaultSchedulerConfig()
	schedulerCfg.Interval = e.config.TTLCleanupInterval
	e.ttlScheduler = ttl.NewTTLScheduler(ttlService, e.ttlLogger, schedulerCfg)

	if err := e.ttlScheduler.Start(context.Background()); err != nil {
		return fmt.Errorf("start ttl scheduler: %w", err)
	}
	slog.Info("ttl cleanup scheduler started", "interval", e.config.TTLCleanupInterval.String())
	return nil
}

func (e *Engine) initTracer() (func(context.Context), error) {
	if !e.config.EnableTracing {
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(e.config.OTelEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create grpc connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("tacticalrag")))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("trace exporter shutdown failed", "error", err)
		}
	}, nil
}

func (e *Engine) initRouter() {
	e.router = gin.New()
	e.router.Use(gin.Recovery())
	e.router.Use(otelgin.Middleware("tacticalrag"))

	deps := httpapi.Dependencies{
		Retriever:   e.retriever,
		Generator:   e.generator,
		Memory:      e.memory,
		Prefetcher:  e.prefetcher,
		Embedder:    e.embedder,
		ResultCache: e.resultCache,
		Settings:    e.settingsStore,
	}
	deps.Health.VectorStore = func(ctx context.Context) error {
		ready, err := e.weaviateClient.Misc().ReadyChecker().Do(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return fmt.Errorf("weaviate not ready")
		}
		return nil
	}
	deps.Health.LLM = func(ctx context.Context) error {
		if e.llmWorker == nil {
			return fmt.Errorf("llm worker not initialized")
		}
		return nil
	}
	deps.Health.Embedding = func(ctx context.Context) error {
		if e.embedder == nil {
			return fmt.Errorf("embedder not initialized")
		}
		return nil
	}
	deps.Health.Cache = func(ctx context.Context) error {
		if e.embedDB == nil {
			return fmt.Errorf("embedding cache db not initialized")
		}
		return e.embedDB.WithReadTxn(ctx, func(txn *badger.Txn) error { return nil })
	}

	httpapi.SetupRoutes(e.router, deps)
}

// Router returns the configured Gin engine, primarily for integration
// testing.
func (e *Engine) Router() *gin.Engine {
	return e.router
}

// Settings returns the live runtime settings snapshot (C12).
func (e *Engine) Settings() config.Settings {
	return e.settingsStore.Snapshot()
}

// Run starts the HTTP server and blocks until it stops.
func (e *Engine) Run() error {
	defer e.Close()
	addr := fmt.Sprintf(":%d", e.config.Port)
	slog.Info("starting tacticalrag server", "port", e.config.Port)
	return e.router.Run(addr)
}

// Close releases every resource Engine owns: background workers, the TTL
// scheduler and its audit log, the settings watcher, the cache database,
// and the tracer. Safe to call once after Run returns or after a failed
// Run attempt.
func (e *Engine) Close() {
	if e.backgroundCancel != nil {
		e.backgroundCancel()
	}
	if e.prefetcher != nil {
		e.prefetcher.Stop()
	}
	if e.settingsWatcher != nil {
		e.settingsWatcher.Stop()
	}
	if e.ttlScheduler != nil {
		if err := e.ttlScheduler.Stop(); err != nil {
			slog.Warn("ttl scheduler stop error", "error", err)
		}
	}
	if e.ttlLogger != nil {
		if err := e.ttlLogger.Close(); err != nil {
			slog.Warn("ttl logger close error", "error", err)
		}
	}
	if e.embedDB != nil {
		if err := e.embedDB.Close(); err != nil {
			slog.Warn("embedding cache close error", "error", err)
		}
	}
	if e.tracerCleanup != nil {
		e.tracerCleanup(context.Background())
	}
}
