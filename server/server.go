package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"torb/cache"
	"torb/config"
	"torb/core/presence"
	"torb/core/transcode"
	"torb/db"
	"torb/logger"
	"torb/model"
	"torb/repository"
	"torb/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})
	defer logger.Sync()

	server := &http.Server{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer db.CloseRedis()
	log.Println("Successfully connected to Redis")

	// MinIO is optional; when enabled, finished HLS trees are published
	// there and served under /streams/.
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
	}

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(
		&model.Playlist{},
		&model.PlaylistTrack{},
		&model.ChatMessage{},
		&model.UserPreference{},
	); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.StaticDir)
	ensureDirExists(cfg.UploadDir) // one staging directory per track uuid
	ensureDirExists(cfg.MediaDir)  // one HLS output directory per track uuid

	ladder, err := transcode.ParseLadder(cfg.BitrateLadder)
	if err != nil {
		log.Fatalf("Invalid bitrate ladder: %v", err)
	}

	trackRepo := repository.NewMySQLTrackRepository()
	playlistRepo := repository.NewGormPlaylistRepository(db.GormDB)
	chatRepo := repository.NewGormChatRepository(db.GormDB)
	prefRepo := repository.NewGormPreferenceRepository(db.GormDB)

	statusCache := cache.NewTrackStatusCache(db.RedisClient, 24*time.Hour)
	playlistCache := cache.NewPlaylistCache(db.RedisClient, 10*time.Minute)

	encoder := transcode.NewFFmpegEncoder(cfg.FFmpegPath)
	prober := transcode.NewFFprobeProber(cfg.FFmpegPath)

	orchestrator, err := transcode.NewOrchestrator(encoder, prober, trackRepo, transcode.Options{
		MediaDir:    cfg.MediaDir,
		Ladder:      ladder,
		SegmentTime: cfg.HLSSegmentTime,
		Workers:     cfg.TranscodeWorkers,
		JobTimeout:  cfg.TranscodeTimeout,
		OnTerminal:  publishOnReady(cfg),
	})
	if err != nil {
		log.Fatalf("Failed to create transcode orchestrator: %v", err)
	}
	orchestrator.Start()

	intake := transcode.NewIntake(trackRepo, orchestrator, cfg.UploadDir)
	statusTracker := transcode.NewStatusTracker(trackRepo, statusCache)
	hub := presence.NewHub(chatRepo)

	apiHandler := NewAPIHandler(cfg, intake, statusTracker, orchestrator,
		trackRepo, playlistRepo, chatRepo, prefRepo, playlistCache, hub)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Upload pipeline
	router.HandleFunc("/api/upload", apiHandler.IdentityMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/upload/status/{track_id}", apiHandler.UploadStatusHandler).Methods(http.MethodGet)

	// Library and streaming
	router.HandleFunc("/api/tracks", apiHandler.IdentityMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/stream/{track_uuid}/master.m3u8", apiHandler.StreamMasterHandler).Methods(http.MethodGet)

	// Playlists
	router.HandleFunc("/api/playlists", apiHandler.IdentityMiddleware(apiHandler.GetPlaylistsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", apiHandler.IdentityMiddleware(apiHandler.CreatePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", apiHandler.IdentityMiddleware(apiHandler.GetPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", apiHandler.IdentityMiddleware(apiHandler.UpdatePlaylistHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", apiHandler.IdentityMiddleware(apiHandler.DeletePlaylistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/tracks", apiHandler.IdentityMiddleware(apiHandler.AddPlaylistTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/tracks/{track_id}", apiHandler.IdentityMiddleware(apiHandler.RemovePlaylistTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/tracks/{track_id}/position", apiHandler.IdentityMiddleware(apiHandler.MovePlaylistTrackHandler)).Methods(http.MethodPut)

	// Chat, preferences, presence
	router.HandleFunc("/api/chat/history", apiHandler.IdentityMiddleware(apiHandler.ChatHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences", apiHandler.IdentityMiddleware(apiHandler.GetPreferencesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences", apiHandler.IdentityMiddleware(apiHandler.UpdatePreferencesHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/presence", apiHandler.IdentityMiddleware(apiHandler.SetPresenceHandler)).Methods(http.MethodPut)

	// Websockets
	router.HandleFunc("/ws", apiHandler.IdentityMiddleware(apiHandler.WebSocketHandler))
	router.HandleFunc("/ws/progress/{track_id}", apiHandler.TranscodeProgressHandler)

	// MinIO-published HLS trees
	if cfg.MinioEnabled {
		router.PathPrefix("/streams/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveMinioObject(w, r, cfg, strings.TrimPrefix(r.URL.Path, "/"))
		})
	}

	// Local HLS output and staged uploads (covers)
	mediaFileServer := http.FileServer(http.Dir(cfg.MediaDir))
	router.PathPrefix("/media/").Handler(http.StripPrefix("/media/", mediaFileServer))

	uploadsFileServer := http.FileServer(http.Dir(cfg.UploadDir))
	router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", uploadsFileServer))

	// Frontend UI serving
	uiFileServer := http.FileServer(http.Dir(cfg.WebAppDir))
	router.PathPrefix("/").Handler(uiFileServer)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Println("Server starting on :8080...")
		log.Println("Upload tracks via POST to http://localhost:8080/api/upload")
		log.Println("Poll status via GET from http://localhost:8080/api/upload/status/{track_id}")
		log.Println("Stream tracks via GET from http://localhost:8080/api/stream/{track_uuid}/master.m3u8")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop accepting work and wait for in-flight transcodes to notice the
	// cancellation; queued jobs that never started are marked as errored.
	orchestrator.Stop()

	log.Println("Server stopped")
}

// publishOnReady returns the terminal hook: when MinIO is enabled, a
// track's finished HLS tree is mirrored into the bucket under
// streams/<uuid>/ so it can be served from object storage.
func publishOnReady(cfg *config.Config) transcode.TerminalFunc {
	if !cfg.MinioEnabled {
		return nil
	}
	return func(job transcode.Job, status model.TrackStatus, hlsRoot string, duration float32) {
		if status != model.StatusReady {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		prefix := filepath.ToSlash(filepath.Join("streams", job.UUID))
		if err := storage.PublishDir(ctx, cfg.MinioBucket, prefix, hlsRoot); err != nil {
			logger.Warn("failed to publish HLS tree to MinIO",
				logger.Int64("trackId", job.TrackID),
				logger.String("uuid", job.UUID),
				logger.ErrorField(err))
		}
	}
}

// serveMinioObject streams one object from the bucket to the client.
func serveMinioObject(w http.ResponseWriter, r *http.Request, cfg *config.Config, objectPath string) {
	client := storage.GetMinioClient()
	if client == nil {
		http.Error(w, "MinIO client not available", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", storage.ContentTypeFor(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Debug("error serving file from MinIO", logger.ErrorField(err))
	}
}

func ensureDirExists(dirPath string) {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dirPath, err)
		}
	}
}
