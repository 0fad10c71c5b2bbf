package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisarsenal/aegis"
	"github.com/aegisarsenal/aegis/admin"
	"github.com/aegisarsenal/aegis/agent"
	"github.com/aegisarsenal/aegis/budget"
	"github.com/aegisarsenal/aegis/config"
	"github.com/aegisarsenal/aegis/ingress"
	"github.com/aegisarsenal/aegis/relay"
	"github.com/aegisarsenal/aegis/store"
	"github.com/aegisarsenal/aegis/telemetry"
	"github.com/aegisarsenal/aegis/tool"
	"github.com/fatih/color"
)

// request is the payload of an ingress delivery. Messages carrying no thread
// ID get a fresh one, starting a new conversation thread.
type request struct {
	ThreadID string `json:"thread_id,omitempty"`
	Input    string `json:"input"`
}

func main() {
	var (
		configFile string
		verbose    bool
	)
	flag.StringVar(&configFile, "config", "", "Path to the YAML configuration file (optional)")
	flag.StringVar(&configFile, "c", "", "Path to the YAML configuration file (shorthand)")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&verbose, "v", false, "Enable verbose logging (shorthand)")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Verbose = true
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := aegis.NewLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: the shared pool backs both checkpoints and the spend
	// ledger. A startup failure here must prevent any delivery processing.
	var (
		checkpointer aegis.Checkpointer
		ledger       budget.Ledger
	)
	switch cfg.Checkpoint {
	case config.CheckpointPostgres:
		db, err := store.Open(ctx, store.PoolConfig{
			DSN:      cfg.DatabaseURL,
			MinConns: cfg.Pool.MinConns,
			MaxConns: cfg.Pool.MaxConns,
		})
		if err != nil {
			log.Fatalf("Failed to open database pool: %v", err)
		}
		defer db.Close()
		checkpointer, err = store.NewCheckpointer(ctx, db)
		if err != nil {
			log.Fatalf("Failed to initialize checkpoint store: %v", err)
		}
		ledger, err = store.NewLedger(ctx, db)
		if err != nil {
			log.Fatalf("Failed to initialize usage ledger: %v", err)
		}
		color.Blue("Checkpoints: postgres")
	case config.CheckpointFile:
		checkpointer, err = aegis.NewFileCheckpointer(cfg.CheckpointDir)
		if err != nil {
			log.Fatalf("Failed to create file checkpointer: %v", err)
		}
		ledger = budget.NewMemoryLedger()
		color.Blue("Checkpoints: %s", cfg.CheckpointDir)
	default:
		checkpointer = aegis.NewMemoryCheckpointer()
		ledger = budget.NewMemoryLedger()
		color.Yellow("Checkpoints: in-memory (no crash recovery)")
	}

	guard, err := budget.NewGuard(budget.GuardOptions{
		Ledger:      ledger,
		DailyLimit:  cfg.Budget.DailyLimit,
		HourlyLimit: cfg.Budget.HourlyLimit,
		Cooldown:    cfg.Budget.Cooldown.Std(),
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to create budget guard: %v", err)
	}

	tools := tool.NewRegistry()
	if err := tools.Register(tool.NewDrawingTool()); err != nil {
		log.Fatalf("Failed to register tools: %v", err)
	}

	graph, err := agent.NewGraph(agent.Dependencies{
		Generator:   &agent.StaticGenerator{},
		Tools:       tools,
		ProjectID:   cfg.ProjectID,
		ServiceName: cfg.ServiceName,
		CostPerCall: cfg.Budget.CostPerCall,
	})
	if err != nil {
		log.Fatalf("Failed to build workflow graph: %v", err)
	}

	var nodeLogger aegis.NodeLogger
	if cfg.NodeLogDir != "" {
		nodeLogger = aegis.NewFileNodeLogger(cfg.NodeLogDir)
		color.Blue("Node logs: %s", cfg.NodeLogDir)
	} else {
		nodeLogger = aegis.NewNullNodeLogger()
	}

	recorder := telemetry.Select(cfg.Telemetry, logger)

	engine, err := aegis.NewEngine(aegis.EngineOptions{
		Graph:         graph,
		Checkpointer:  checkpointer,
		Admission:     telemetry.Admission(guard, recorder),
		Logger:        logger,
		NodeLogger:    nodeLogger,
		NodeTimeout:   cfg.NodeTimeout.Std(),
		ProjectedCost: cfg.Budget.CostPerCall,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// Relay: the subscriber runs the workflow and records spend after the run,
	// and its error becomes the publish result the ingress adapter nacks on.
	bus := relay.NewBus(relay.BusOptions{Logger: logger})
	err = bus.Subscribe(cfg.Topic, func(ctx context.Context, msg relay.Message) error {
		req, err := decodeRequest(msg)
		if err != nil {
			logger.Error("dropping malformed request", "message_id", msg.ID, "error", err)
			return err
		}

		startTime := time.Now()
		state, runErr := engine.Run(ctx, req.ThreadID, req.Input)
		recorder.RecordRun(ctx, req.ThreadID, time.Since(startTime), runErr)

		if state != nil {
			if cost := agent.RunCost(state); cost > 0 {
				entry := budget.Entry{ThreadID: req.ThreadID, Cost: cost, Model: "simulated"}
				if err := ledger.Append(ctx, entry); err != nil {
					logger.Error("failed to record spend", "thread_id", req.ThreadID, "error", err)
				}
			}
		}
		return runErr
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	queue := ingress.NewMemoryQueue(cfg.FlowControl.MaxInFlight * 4)
	flow := ingress.NewFlowController(cfg.FlowControl.MaxInFlight, cfg.FlowControl.MaxBytesInFlight)
	adapter, err := ingress.NewAdapter(ingress.AdapterOptions{
		Queue:        queue,
		Bus:          bus,
		Topic:        cfg.Topic,
		Flow:         flow,
		Logger:       logger,
		DrainTimeout: cfg.DrainTimeout.Std(),
	})
	if err != nil {
		log.Fatalf("Failed to create ingress adapter: %v", err)
	}
	if err := adapter.Start(ctx); err != nil {
		log.Fatalf("Failed to start ingress adapter: %v", err)
	}

	adminServer, err := admin.NewServer(cfg.AdminSecret, logger)
	if err != nil {
		log.Fatalf("Failed to create admin server: %v", err)
	}
	registerCommands(adminServer, checkpointer, tools, guard, queue)

	mux := http.NewServeMux()
	mux.Handle("/commands/", adminServer)
	httpServer := &http.Server{Addr: cfg.AdminAddr, Handler: mux}
	go func() {
		color.Green("Admin endpoint listening on %s", cfg.AdminAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
			stop()
		}
	}()

	color.Green("Aegis Arsenal started (topic: %s)", cfg.Topic)
	<-ctx.Done()
	color.Yellow("Shutting down...")

	// Shutdown order: stop pulling first so nothing new enters, close the
	// admin endpoint so submit_request cannot feed the queue mid-teardown,
	// then drain the relay and close the queue.
	adapter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout.Std())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown failed", "error", err)
	}

	bus.Close()
	queue.Close()
	color.White("Shutdown complete")
}

// decodeRequest parses a delivery payload. JSON payloads may name their
// thread; raw payloads become the input of a fresh thread.
func decodeRequest(msg relay.Message) (*request, error) {
	var req request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		req.Input = string(msg.Payload)
	}
	if req.ThreadID == "" {
		req.ThreadID = msg.Attributes["thread_id"]
	}
	if req.ThreadID == "" {
		req.ThreadID = aegis.NewThreadID()
	}
	if req.Input == "" {
		return nil, fmt.Errorf("empty input")
	}
	return &req, nil
}

func registerCommands(server *admin.Server, checkpointer aegis.Checkpointer, tools *tool.Registry, guard *budget.Guard, queue *ingress.MemoryQueue) {
	commands := map[string]admin.CommandHandler{
		"check_job_status": admin.CheckJobStatus(checkpointer),
		"list_tools":       admin.ListTools(tools),
		"budget_status":    admin.BudgetStatus(guard),
		"submit_request":   submitRequest(queue),
	}
	for name, handler := range commands {
		if err := server.Register(name, handler); err != nil {
			log.Fatalf("Failed to register command %s: %v", name, err)
		}
	}
}

// submitRequest enqueues a request onto the local queue so the full pipeline
// can be driven without an external broker.
func submitRequest(queue *ingress.MemoryQueue) admin.CommandHandler {
	return func(ctx context.Context, kwargs map[string]any) (string, error) {
		input, _ := kwargs["input"].(string)
		if input == "" {
			return "", fmt.Errorf("missing required argument input")
		}
		threadID, _ := kwargs["thread_id"].(string)
		if threadID == "" {
			threadID = aegis.NewThreadID()
		}
		payload, err := json.Marshal(request{ThreadID: threadID, Input: input})
		if err != nil {
			return "", err
		}
		messageID, err := queue.Enqueue(payload, map[string]string{"thread_id": threadID})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("queued message %s for thread %s", messageID, threadID), nil
	}
}
