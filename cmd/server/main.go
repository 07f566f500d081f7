package main

import (
	"context"
	"log"
	"time"

	"drawboard/internal/cache"
	"drawboard/internal/config"
	"drawboard/internal/database"
	"drawboard/internal/logger"
	"drawboard/internal/repository/memory"
	"drawboard/internal/repository/postgres"
	"drawboard/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	deps := server.Deps{Logger: zl}

	// 드로잉 저장소
	if cfg.Storage.InMemory() {
		sugar.Warn("⚠️ STORE_DRIVER=memory: drawings are lost on restart")
		deps.Drawings = memory.NewDrawingRepo()
	} else {
		db, err := database.ConnectDB(database.LoadConfig(), zl)
		if err != nil {
			sugar.Fatalf("❌ Database connection failed: %v", err)
		}
		defer database.Close(db)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = database.Ping(pingCtx, db)
		cancel()
		if err != nil {
			sugar.Fatalf("❌ Database ping failed: %v", err)
		}
		sugar.Info("✅ Database connected successfully")

		deps.DB = db
		deps.Drawings = postgres.NewDrawingRepo(db)
	}

	// Redis (선택): 멀티 인스턴스 릴레이 + presence 미러
	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, sugar)
		if err != nil {
			sugar.Fatalf("❌ Redis connection failed: %v", err)
		}
		defer rc.Close()
		deps.Redis = rc
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, deps)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		sugar.Fatalf("Server failed to start: %v", err)
	}
}
