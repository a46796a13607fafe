/**
 * @description
 * This is the main entry point for the packet-service. It initializes all
 * components of the service: configuration, the Redis store that hosts
 * packet state, the RabbitMQ event producer and the optional claim-archive
 * consumer backed by Postgres, the core application service, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP.
 * - github.com/go-chi/chi/v5: For HTTP routing (via internal/api).
 * - github.com/redis/go-redis/v9: Shared store client.
 * - github.com/jackc/pgx/v5: Claim archive connection pool.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq: Event producer and consumer.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/luckyshare/packet-service/internal/api"
	"github.com/luckyshare/packet-service/internal/app"
	"github.com/luckyshare/packet-service/internal/config"
	"github.com/luckyshare/packet-service/internal/store"
	pkgrabbit "github.com/luckyshare/packet-service/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url must be configured\" env=REDIS_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting packet-service\" port=%s", cfg.ServerPort)

	// The store client is a process-wide handle: created once here, shared
	// by all requests, closed on shutdown.
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", err)
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

	// Event producer is best-effort: the claim path must keep working when
	// the broker is down, so fall back to a no-op publisher.
	var eventProducer pkgrabbit.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; packet events disabled\" env=RABBITMQ_URL")
		eventProducer = &pkgrabbit.EventProducerFallback{}
	} else if producer, err := pkgrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.PacketEventExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &pkgrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	packetStore := store.NewRedisStore(redisClient)
	keys := store.NewKeys(cfg.RedisKeyPrefix)

	packetService := app.NewService(packetStore, keys, eventProducer)
	packetService.ConfigureLimits(cfg.DefaultExpireMinutes, cfg.ClaimLockTTLSeconds, cfg.MaxPacketCount)
	if cfg.ClaimRateLimitPerMinute > 0 {
		packetService.SetClaimRateLimiter(
			app.NewRedisClaimRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.ClaimRateLimitPerMinute,
		)
	}

	// The claim archive is optional: it needs both Postgres and RabbitMQ.
	// Missing config degrades to no archival rather than blocking startup.
	if strings.TrimSpace(cfg.DatabaseURL) == "" || strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Printf("level=warn component=bootstrap msg=\"claim archive disabled\" database_url_set=%t rabbitmq_url_set=%t",
			strings.TrimSpace(cfg.DatabaseURL) != "",
			strings.TrimSpace(cfg.RabbitMQURL) != "",
		)
	} else {
		dbpool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"archive database connection failed; claim archive disabled\" err=%v", err)
		} else {
			defer dbpool.Close()

			archiveConsumer, err := pkgrabbit.NewConsumer(cfg.RabbitMQURL)
			if err != nil {
				log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer init failed; claim archive disabled\" err=%v", err)
			} else {
				defer archiveConsumer.Close()

				archiver := app.NewClaimArchiver(store.NewPostgresArchive(dbpool))
				bindings := map[string]func([]byte) bool{
					pkgrabbit.PacketClaimedRoutingKey: archiver.HandleClaimedMessage,
				}
				if err := archiveConsumer.ConsumeWithBindings(cfg.PacketEventExchange, cfg.ClaimArchiveQueue, bindings); err != nil {
					log.Printf("level=warn component=bootstrap msg=\"claim archive consumer start failed\" err=%v", err)
				} else {
					log.Println("level=info component=bootstrap msg=\"claim archive consumer started\"")
				}
			}
		}
	}

	handlers := api.NewPacketHandlers(packetService)
	router := api.PacketRoutes(handlers, api.AuthConfig{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
