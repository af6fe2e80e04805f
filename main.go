package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"opscycle/internal/assignment"
	"opscycle/internal/audit"
	"opscycle/internal/config"
	"opscycle/internal/cycle"
	"opscycle/internal/driver"
	"opscycle/internal/engine"
	"opscycle/internal/httpmw"
	"opscycle/internal/server"
	"opscycle/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("OPSCYCLE_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New(os.Stdout, "opscycle ", log.LstdFlags)

	app, cleanup, err := buildApp(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	if cfg.Driver.Enabled && app.Driver != nil {
		go app.Driver.Run(context.Background())
	}

	mux := http.NewServeMux()
	rr := &server.RouteRegistry{}
	server.RegisterAPIRoutes(mux, rr, app)

	handler := httpmw.Chain(mux,
		httpmw.WithRequestID,
		httpmw.WithRecover(logger),
		httpmw.WithAccessLog(logger),
	)

	addr := ":" + cfg.Server.Port
	fmt.Printf("opscycle listening on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func buildApp(cfg config.Config, logger *log.Logger) (*server.App, func(), error) {
	templateRepo := template.NewMemoryRepo()
	assignmentRepo := assignment.NewMemoryRepo()
	recorder := audit.NewMemoryRecorder()

	var cycleRepo cycle.Repo
	cleanup := func() {}
	if cfg.Store.SQLitePath != "" {
		store, err := cycle.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cycleRepo = store
		cleanup = func() { _ = store.Close() }
	} else {
		cycleRepo = cycle.NewMemoryRepo()
	}

	clock := engine.RealClock{}
	eng := &engine.Engine{
		Templates:   templateRepo,
		Assignments: assignmentRepo,
		Cycles:      cycleRepo,
		Audit:       recorder,
		Clock:       clock,
		Logger:      logger,
	}

	d := &driver.Driver{
		Engine:      eng,
		Assignments: assignmentRepo,
		Templates:   templateRepo,
		Clock:       clock,
		Logger:      logger,
		Interval:    cfg.DriverInterval(),
	}

	return &server.App{
		Engine:      eng,
		Templates:   templateRepo,
		Assignments: assignmentRepo,
		Cycles:      cycleRepo,
		Driver:      d,
		AuditLog:    recorder,
	}, cleanup, nil
}
