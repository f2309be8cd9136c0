package main

import (
	"context"
	"net/http"
	"os"

	webAdapter "printshop-backend/internal/adapters/web"
	"printshop-backend/internal/app"
	"printshop-backend/internal/core"
	"printshop-backend/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	users := core.NewUserService(pool)
	rolls := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	sequencer := core.NewReceiptSequencer(pool)
	reconciler := core.NewPaymentReconciler(pool)
	ledger := core.NewOrderLedger(pool, sequencer, allocator, reconciler)

	svc := app.NewAppService(users, rolls, allocator, ledger, reconciler)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Warn("JWT_SECRET is not set; login tokens are signed with an empty key")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, log, allowedOrigins, jwtSecret)

	log.Infof("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
