// Package server wires the IPC registry, its collaborators and the
// syscall-dispatch HTTP surface into one runnable service.
package server

import (
	nethttp "net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helixos/kernel-ipc/internal/api/http"
	"github.com/helixos/kernel-ipc/internal/config"
	"github.com/helixos/kernel-ipc/internal/ipc"
	"github.com/helixos/kernel-ipc/internal/logging"
	"github.com/helixos/kernel-ipc/internal/memory"
	"github.com/helixos/kernel-ipc/internal/monitoring"
	"github.com/helixos/kernel-ipc/internal/process"
	"github.com/helixos/kernel-ipc/internal/ws"
)

// The metric series live in the process-global Prometheus registry, so the
// collector is built once no matter how many servers a process constructs.
var (
	metricsOnce sync.Once
	metrics     *monitoring.Metrics
)

// Server owns the registry, its collaborators and the HTTP router.
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	log    *logging.Logger

	instanceID string
	manager    *ipc.Manager
	arena      *memory.Arena
	procs      *process.Table
	sched      *process.WakeScheduler
}

// New builds the full service: hosted memory collaborators, process table,
// wake scheduler, registry, metrics and routes.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	arena, err := memory.NewArena(cfg.Memory.ArenaPages)
	if err != nil {
		return nil, err
	}

	addrSpace := memory.NewAddressSpace()
	procs := process.NewTable()
	sched := process.NewWakeScheduler()
	manager := ipc.NewManager(arena, addrSpace, procs, sched, log)

	metricsOnce.Do(func() { metrics = monitoring.NewMetrics() })

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(monitoring.Middleware(metrics))

	handlers := http.NewHandlers(manager, procs, metrics, cfg, log)
	wsHandler := ws.NewHandler(manager, log)

	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Processes
	router.POST("/processes", handlers.RegisterProcess)
	router.DELETE("/processes/:pid", handlers.UnregisterProcess)

	// Message queues
	router.POST("/queues", handlers.CreateQueue)
	router.DELETE("/queues/:id", handlers.DestroyQueue)
	router.POST("/queues/:id/messages", handlers.SendMessage)
	router.POST("/queues/:id/receive", handlers.ReceiveMessage)
	router.GET("/queues/:id/peek", handlers.PeekMessage)
	router.POST("/queues/:id/zero-copy", handlers.SendZeroCopy)
	router.POST("/queues/:id/zero-copy/receive", handlers.ReceiveZeroCopy)

	// Shared memory
	router.POST("/shm", handlers.CreateSharedMemory)
	router.DELETE("/shm/:id", handlers.DestroySharedMemory)
	router.POST("/shm/:id/attach", handlers.AttachSharedMemory)
	router.POST("/shm/:id/detach", handlers.DetachSharedMemory)
	router.POST("/shm/:id/write", handlers.WriteSharedMemory)
	router.GET("/shm/:id/read", handlers.ReadSharedMemory)
	router.POST("/zero-copy/address", handlers.ZeroCopyAddress)
	router.POST("/zero-copy/release", handlers.ReleaseZeroCopy)

	// Semaphores
	router.POST("/semaphores", handlers.CreateSemaphore)
	router.DELETE("/semaphores/:id", handlers.DestroySemaphore)
	router.POST("/semaphores/:id/wait", handlers.WaitSemaphore)
	router.POST("/semaphores/:id/signal", handlers.SignalSemaphore)

	// Event channels
	router.POST("/channels", handlers.CreateChannel)
	router.DELETE("/channels/:id", handlers.DestroyChannel)
	router.POST("/channels/:id/subscribe", handlers.Subscribe)
	router.POST("/channels/:id/unsubscribe", handlers.Unsubscribe)
	router.POST("/channels/:id/publish", handlers.Publish)
	router.POST("/channels/:id/events", handlers.GetEvents)

	// WebSocket event streaming
	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		router:     router,
		cfg:        cfg,
		log:        log,
		instanceID: uuid.New().String(),
		manager:    manager,
		arena:      arena,
		procs:      procs,
		sched:      sched,
	}, nil
}

// Manager exposes the registry, for integration tests.
func (s *Server) Manager() *ipc.Manager {
	return s.manager
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// Run starts the HTTP listener and blocks.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.log.Info("ipc service listening",
		zap.String("addr", addr),
		zap.String("instance", s.instanceID),
		zap.Int("arena_pages", s.arena.Pages()))
	return s.router.Run(addr)
}

// Close releases held resources.
func (s *Server) Close() error {
	return s.arena.Close()
}
