package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/config"
	"github.com/avetra/storegate/internal/database"
	"github.com/avetra/storegate/internal/guard"
	"github.com/avetra/storegate/internal/handler"
	"github.com/avetra/storegate/internal/middleware"
	"github.com/avetra/storegate/internal/queue"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/router"
	"github.com/avetra/storegate/internal/session"
	"github.com/avetra/storegate/internal/store"
	"github.com/avetra/storegate/internal/ws"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env directly

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	users := repository.NewUserRepo(db)

	// The counter store prefers Redis; without it the OTP and invite
	// guards run on the in-process store, which does not survive
	// restarts or span replicas. Loud warning so operators notice.
	rdb := config.NewRedisClient()
	var counters store.Store
	if rdb != nil {
		counters = store.NewRedis(rdb)
	} else {
		log.Printf("redis unreachable; falling back to in-process counter store")
		counters = store.NewMemory()
	}

	issuer := session.NewIssuer(cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays)
	otpGuard := guard.NewOTPGuard(counters)
	invites := guard.NewInviteService(counters)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, users, issuer)
	otpH := handler.NewOTPHandler(users, otpGuard)
	inviteH := handler.NewInviteHandler(cfg, users, invites, issuer)
	gateway := ws.NewGateway(ws.NewHub(), issuer)

	// Mail worker: consumes otp.dispatch and records deliveries.
	go func() {
		if err := queue.StartOTPConsumer(); err != nil {
			log.Printf("otp-consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, issuer, limiter)
	router.RegisterOTP(e, otpH, issuer, users, limiter)
	router.RegisterInvites(e, inviteH, issuer, limiter)
	router.RegisterChat(e, gateway)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
