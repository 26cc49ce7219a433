package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qagaz.org/internal/access"
	"qagaz.org/internal/audit"
	"qagaz.org/internal/document"
	"qagaz.org/internal/filestore"
	"qagaz.org/internal/httpapi"
	"qagaz.org/internal/notify"
	"qagaz.org/internal/obs"
	"qagaz.org/internal/rbac"
	"qagaz.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()

	// Persistence: Postgres when a DSN is configured, in-memory otherwise.
	// The in-memory mode is for local development and smoke runs only.
	var (
		probe      httpapi.ReadyProbe
		rbacStore  rbac.Store
		docStore   document.Store
		recorder   audit.Recorder
		activity   httpapi.ActivityReader
		closeStore func() error
	)
	if dsn := os.Getenv("QAGAZ_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		probe = httpapi.ReadyProbe{DB: store.DB()}
		rbacStore = store
		docStore = store
		recorder = store
		activity = store
		closeStore = store.Close
	} else {
		log.Printf("QAGAZ_PG_DSN is empty, running with in-memory stores")
		rbacStore = rbac.NewInMemory()
		docStore = document.NewInMemory()
		recorder = audit.LogRecorder{}
	}

	rbacSvc, err := rbac.NewService(rbacStore)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	if err := rbacSvc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("ensure builtin roles: %v", err)
	}

	gate, err := access.NewGate(rbacSvc)
	if err != nil {
		log.Fatalf("access gate: %v", err)
	}

	loc := time.UTC
	if tz := os.Getenv("QAGAZ_TZ"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			log.Fatalf("load timezone %q: %v", tz, err)
		}
	}

	filesRoot := os.Getenv("QAGAZ_FILES_DIR")
	if filesRoot == "" {
		filesRoot = "data/files"
	}
	files, err := filestore.NewLocal(filesRoot)
	if err != nil {
		log.Fatalf("file storage: %v", err)
	}

	hub := notify.NewHub(notify.LogNotifier{})

	docs, err := document.NewService(docStore, gate,
		document.WithRecorder(recorder),
		document.WithNotifier(hub),
		document.WithFileStorage(files),
		document.WithLocation(loc),
	)
	if err != nil {
		log.Fatalf("document service: %v", err)
	}

	api, err := httpapi.New(httpapi.Config{
		ReadyProbe: probe,
		Version:    version,
		Documents:  docs,
		RBAC:       rbacSvc,
		Hub:        hub,
		Activity:   activity,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	// periodic deadline notifications for sent-back documents
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return
			case <-ticker.C:
				if n, err := docs.SweepDeadlines(context.Background()); err != nil {
					log.Printf("deadline sweep: %v", err)
				} else if n > 0 {
					log.Printf("deadline sweep: %d notifications", n)
				}
			}
		}
	}()

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 64<<20)
	handler = httpapi.RateLimit(handler, 40, 20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)

	addr := os.Getenv("QAGAZ_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // SSE clients hold the response open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting qagaz-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	close(sweepDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if closeStore != nil {
		_ = closeStore()
	}
	log.Println("Stopped")
}
