package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tinyteamco/verity-sub000/internal/config"
	"github.com/tinyteamco/verity-sub000/internal/database"
	"github.com/tinyteamco/verity-sub000/internal/handler"
	"github.com/tinyteamco/verity-sub000/internal/identity"
	"github.com/tinyteamco/verity-sub000/internal/interview"
	"github.com/tinyteamco/verity-sub000/internal/org"
	"github.com/tinyteamco/verity-sub000/internal/participant"
	"github.com/tinyteamco/verity-sub000/internal/storage"
	"github.com/tinyteamco/verity-sub000/internal/study"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database connection: %v", err)
		}
	}()
	log.Println("database connection established")

	migrationsPath := getMigrationsPath()
	if err := db.MigrateUp(migrationsPath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	version, dirty, err := db.MigrateVersion(migrationsPath)
	if err != nil {
		log.Printf("WARNING: failed to get migration version: %v", err)
	} else if dirty {
		log.Printf("WARNING: database is in dirty state at version %d - a previous migration failed and manual intervention is required", version)
	} else {
		log.Printf("database migrations complete (version: %d)", version)
	}

	verifier, err := identity.NewHMACVerifier(cfg.Identity.Secret, cfg.Identity.Issuer)
	if err != nil {
		log.Fatalf("failed to initialize identity verifier: %v", err)
	}

	store, err := storage.NewS3Store(context.Background(), storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	interviewManager := interview.NewManager(interview.NewDatastore(db.DB), cfg.InterviewTTL)

	deps := &handler.Deps{
		DB:            db,
		Orgs:          org.NewManager(org.NewDatastore(db.DB)),
		Users:         user.NewManager(user.NewDatastore(db.DB)),
		Studies:       study.NewManager(study.NewDatastore(db.DB)),
		Interviews:    interviewManager,
		Participants:  participant.NewManager(participant.NewDatastore(db.DB), interviewManager),
		Verifier:      verifier,
		Store:         store,
		EngineBaseURL: cfg.EngineBaseURL,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		log.Printf("Verity server starting on :%s (env: %s)", cfg.Port, cfg.Environment)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-shutdown:
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Println("waiting for in-flight requests to complete...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown failed: %v, forcing shutdown", err)
			if err := server.Close(); err != nil {
				log.Fatalf("forced shutdown failed: %v", err)
			}
		}

		log.Println("server shutdown complete")
	}
}

// getMigrationsPath locates the migrations directory: MIGRATIONS_PATH wins,
// then the working directory, then the executable's directory.
func getMigrationsPath() string {
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		return path
	}

	if _, err := os.Stat("migrations"); err == nil {
		absPath, _ := filepath.Abs("migrations")
		return absPath
	}

	execPath, err := os.Executable()
	if err == nil {
		migrationsPath := filepath.Join(filepath.Dir(execPath), "migrations")
		if _, err := os.Stat(migrationsPath); err == nil {
			return migrationsPath
		}
	}

	return "/app/migrations"
}
