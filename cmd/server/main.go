package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/infinitedim/skyvix/internal/config"
	"github.com/infinitedim/skyvix/internal/database"
	"github.com/infinitedim/skyvix/internal/gateway"
	"github.com/infinitedim/skyvix/internal/handler"
	"github.com/infinitedim/skyvix/internal/middleware"
	"github.com/infinitedim/skyvix/internal/queue"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/router"
	"github.com/infinitedim/skyvix/internal/service"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	stations := repository.NewStationRepo(db)
	routes := repository.NewRouteRepo(db)
	schedules := repository.NewScheduleRepo(db)
	seats := repository.NewSeatRepo(db)
	bookings := repository.NewBookingRepo(db)

	paymentSvc := service.NewPaymentService(payments, orders, gw, queue.Publish)
	bookingSvc := service.NewBookingService(bookings, schedules, seats, queue.Publish)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	rl := config.LoadRateLimitConfig()
	cc := config.LoadCacheConfig()
	var cache echo.MiddlewareFunc
	if rl.Enabled || cc.Enabled {
		// NewRedisClient returns nil when Redis is unreachable; both
		// middlewares treat a nil store as "disabled", so requests keep
		// flowing without limiting or caching.
		rdb := config.NewRedisClient()
		if rdb == nil {
			log.Printf("redis unavailable, rate limiting and response cache disabled")
		}
		var counter middleware.CounterStore
		var respCache middleware.CacheStore
		if rdb != nil {
			counter = middleware.RedisCounter{RDB: rdb}
			respCache = middleware.RedisCache{RDB: rdb}
		}
		if rl.Enabled {
			e.Use(middleware.RateLimit(rl, counter))
		}
		if cc.Enabled {
			cache = middleware.ResponseCache(cc, respCache)
		}
	}

	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, users, tokens),
		User:     handler.NewUserHandler(cfg, users, tokens),
		Order:    handler.NewOrderHandler(orders),
		Payment:  handler.NewPaymentHandler(paymentSvc, cfg.CallbackToken),
		Booking:  handler.NewBookingHandler(bookingSvc),
		Schedule: handler.NewScheduleHandler(schedules, routes, seats),
		Catalog:  handler.NewCatalogHandler(stations, routes),
	}, cfg.JWTSecret, cache)

	// Consumers drain the broker queues into audit logs.  They reconnect
	// on their own, so a startup failure here is not fatal to the API.
	go func() {
		if err := queue.StartPaymentConsumer(); err != nil {
			log.Printf("payment consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
