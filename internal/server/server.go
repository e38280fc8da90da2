package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"doc-intel/internal/db"
	"doc-intel/internal/events"
	"doc-intel/internal/handlers"
	"doc-intel/internal/repositories"
	"doc-intel/internal/routes"
	"doc-intel/internal/services"
	"doc-intel/internal/workers"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handlers.UserIDHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer wires storage, services, workers and handlers into an HTTP server.
// It fails fast: without Redis and ChromaDB there is nothing useful to serve.
func NewServer() (*http.Server, error) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)
	svcLogger := &serviceLogger{logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Backing stores
	redisClient, err := initRedis(ctx, logger)
	if err != nil {
		return nil, err
	}
	chromaClient, err := initChroma(ctx, logger)
	if err != nil {
		return nil, err
	}

	// Repositories
	docRepo := repositories.NewRedisDocumentRepository(redisClient.GetClient())
	docRepo.SetAuditHook(func(operation, entity, entityID string) {
		logger.Printf("audit: %s %s %s", operation, entity, entityID)
	})
	analysisRepo := repositories.NewRedisAnalysisRepository(redisClient.GetClient())
	vectorRepo := repositories.NewChromaVectorRepository(chromaClient)
	artifacts := repositories.NewRedisArtifactStore(redisClient.GetClient())
	queue := repositories.NewRedisStageQueue(redisClient.GetClient())

	// Event fanout
	fanout := events.NewRedisFanout(redisClient.GetClient(), svcLogger)

	// NLU backend: OCR, analysis and embeddings
	nluClient := initNLUClient(logger)

	// Processing pipeline
	indexer := services.NewIndexer(services.IndexerConfig{
		VectorRepo: vectorRepo,
		Embedder:   nluClient,
		Logger:     svcLogger,
	})
	if err := indexer.EnsureCollection(ctx); err != nil {
		logger.Printf("Failed to ensure vector collection: %v", err)
		return nil, err
	}

	engine := services.NewStageEngine(services.StageEngineConfig{
		DocumentRepo: docRepo,
		Queue:        queue,
		Fanout:       fanout,
		Logger:       svcLogger,
	})
	services.RegisterPipeline(engine, services.PipelineDeps{
		Artifacts:  artifacts,
		OCR:        nluClient,
		Extractor:  services.NewProseExtractor(),
		Analyzer:   nluClient,
		Aggregator: services.NewAggregator(analysisRepo, svcLogger),
		Indexer:    indexer,
		Fanout:     fanout,
		Logger:     svcLogger,
	})

	docService := services.NewDocumentService(docRepo, analysisRepo, artifacts, queue, engine, indexer, svcLogger)
	searchService := services.NewSearchServiceWithConfig(nluClient, vectorRepo, docRepo, svcLogger, "", getSearchConfig())

	// Background workers draining the stage queue
	pool := startWorkers(engine, logger)

	// HTTP surface
	h := &routes.Handlers{
		Health:    handlers.NewHealthHandler(docRepo, vectorRepo, pool, logger),
		Documents: handlers.NewDocumentHandler(docService, logger),
		Search:    handlers.NewSearchHandler(searchService, logger),
		Events:    handlers.NewEventsHandler(fanout, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	logger.Printf("Server configured on %s", addr)
	return &http.Server{
		Addr:    addr,
		Handler: corsMiddleware(router),
	}, nil
}

// initRedis connects to Redis and verifies the connection
func initRedis(ctx context.Context, logger *log.Logger) (*db.RedisClient, error) {
	config := getRedisConfig()
	logger.Printf("Connecting to Redis: %s:%d (DB: %d)", config.Host, config.Port, config.DB)

	client, err := db.NewRedisClient(config)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		logger.Printf("Redis connection failed: %v", err)
		logger.Println("Hint: docker run -d -p 6379:6379 redis:7-alpine")
		return nil, err
	}
	logger.Println("Redis connected")
	return client, nil
}

// initChroma connects to ChromaDB and verifies the connection
func initChroma(ctx context.Context, logger *log.Logger) (*db.ChromaDBClient, error) {
	config := getChromaConfig()
	logger.Printf("Connecting to ChromaDB: %s:%d", config.Host, config.Port)

	client := db.NewChromaDBClient(config)
	if err := client.Heartbeat(ctx); err != nil {
		logger.Printf("ChromaDB connection failed: %v", err)
		logger.Println("Hint: docker run -d -p 8000:8000 chromadb/chroma")
		return nil, err
	}
	logger.Println("ChromaDB connected")
	return client, nil
}

// initNLUClient creates the client for the OCR/analysis/embedding backend
func initNLUClient(logger *log.Logger) *services.NLUClient {
	nluURL := os.Getenv("NLU_BACKEND_URL")
	if nluURL == "" {
		nluURL = "http://localhost:8000"
	}

	timeout := 60 * time.Second
	retries := 3

	logger.Printf("Initializing NLU client: %s (timeout: %v, retries: %d)", nluURL, timeout, retries)
	return services.NewNLUClientWithOptions(nluURL, timeout, retries)
}

// getRedisConfig reads Redis configuration from environment variables
func getRedisConfig() db.RedisConfig {
	config := db.DefaultRedisConfig()

	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Host = host
	}
	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if dbNum, err := strconv.Atoi(dbStr); err == nil {
			config.DB = dbNum
		}
	}
	if poolSizeStr := os.Getenv("REDIS_POOL_SIZE"); poolSizeStr != "" {
		if poolSize, err := strconv.Atoi(poolSizeStr); err == nil {
			config.PoolSize = poolSize
		}
	}

	return config
}

// getSearchConfig reads search ranking configuration from environment variables
func getSearchConfig() services.SearchConfig {
	config := services.DefaultSearchConfig()

	if s := os.Getenv("SEARCH_VECTOR_WEIGHT"); s != "" {
		if v, err := strconv.ParseFloat(s, 32); err == nil {
			config.VectorWeight = float32(v)
		}
	}
	if s := os.Getenv("SEARCH_KEYWORD_WEIGHT"); s != "" {
		if v, err := strconv.ParseFloat(s, 32); err == nil {
			config.KeywordWeight = float32(v)
		}
	}
	if s := os.Getenv("SEARCH_SIMILARITY_THRESHOLD"); s != "" {
		if v, err := strconv.ParseFloat(s, 32); err == nil {
			config.SimilarityThreshold = float32(v)
		}
	}

	return config
}

// getChromaConfig reads ChromaDB configuration from environment variables
func getChromaConfig() db.ChromaDBConfig {
	config := db.ChromaDBConfig{
		Host:     "localhost",
		Port:     8001,
		Tenant:   "default_tenant",
		Database: "default_database",
		Timeout:  30 * time.Second,
	}

	if host := os.Getenv("CHROMA_HOST"); host != "" {
		config.Host = host
	}
	if portStr := os.Getenv("CHROMA_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if tenant := os.Getenv("CHROMA_TENANT"); tenant != "" {
		config.Tenant = tenant
	}
	if database := os.Getenv("CHROMA_DATABASE"); database != "" {
		config.Database = database
	}

	return config
}

// startWorkers starts the pipeline workers draining the stage queue
func startWorkers(engine *services.StageEngine, logger *log.Logger) *workers.WorkerPool {
	workerLogger := &serviceLogger{logger: logger}

	pool := workers.NewWorkerPool()
	pool.AddWorker(workers.NewPipelineWorker(workers.PipelineWorkerConfig{
		WorkerConfig: workers.DefaultWorkerConfig("pipeline-worker"),
		Engine:       engine,
		Logger:       workerLogger,
	}))

	if err := pool.StartAll(context.Background()); err != nil {
		logger.Printf("Failed to start workers: %v", err)
	} else {
		logger.Printf("Started %d worker(s)", pool.Count())
	}
	return pool
}

// serviceLogger adapts log.Logger to the key/value logging interface shared
// by the services, events and workers packages
type serviceLogger struct {
	logger *log.Logger
}

func (l *serviceLogger) log(level, msg string, args []interface{}) {
	if len(args) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("[%s] %s %v", level, msg, args)
}

func (l *serviceLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *serviceLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *serviceLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *serviceLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
