package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/archive"
	"github.com/Layr-Labs/zugzwang/internal/auth"
	"github.com/Layr-Labs/zugzwang/internal/boardpng"
	"github.com/Layr-Labs/zugzwang/internal/chain"
	"github.com/Layr-Labs/zugzwang/internal/config"
	"github.com/Layr-Labs/zugzwang/internal/httpapi"
	"github.com/Layr-Labs/zugzwang/internal/live"
	"github.com/Layr-Labs/zugzwang/internal/lobby"
	"github.com/Layr-Labs/zugzwang/internal/obslog"
	"github.com/Layr-Labs/zugzwang/internal/poller"
	"github.com/Layr-Labs/zugzwang/internal/settle"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	signer, err := chain.NewSigner(cfg.Mnemonic)
	if err != nil {
		obslog.L().Fatal("signer init error", zap.Error(err))
	}
	chainClient := chain.NewClient(cfg.RPCURLs(), signer, cfg.RPCTimeout)
	defer chainClient.Close()

	escrow, err := chain.NewEscrow(chainClient, cfg.EscrowAddress, cfg.EscrowChainID)
	if err != nil {
		obslog.L().Fatal("escrow init error", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			obslog.L().Fatal("redis url error", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			obslog.L().Fatal("redis ping error", zap.Error(err))
		}
		defer rdb.Close()
	}

	settler := settle.New(escrow, nil, rdb)
	lobbySvc := lobby.New(settler)
	settler.AttachRecords(lobbySvc)

	hub := live.NewHub()
	lobbySvc.AttachPublisher(hub)

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Warn("archive disabled", zap.Error(err))
		} else {
			lobbySvc.AttachArchive(repo)
			defer repo.Close()
		}
	}

	directory := auth.NewPrivyDirectory(cfg.PrivyAppID, cfg.PrivyAppSecret)
	verifier, err := auth.NewPrivyVerifier(cfg.PrivyAppID, cfg.PrivyVerificationKey, directory)
	if err != nil {
		obslog.L().Fatal("auth init error", zap.Error(err))
	}

	pollerSvc := poller.New(escrow, lobbySvc, cfg.PollInterval, cfg.BackfillFromBlock)

	router := httpapi.NewRouter(httpapi.Deps{
		Lobby:    lobbySvc,
		Verifier: verifier,
		Chain:    chainClient,
		Poller:   pollerSvc,
		Hub:      hub,
		Renderer: boardpng.NewRenderer(),
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go settler.Run(runCtx)
	go func() {
		obslog.L().Info("http_listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("http server error", zap.Error(err))
		}
	}()

	probeCtx, cancelProbe := context.WithTimeout(runCtx, 15*time.Second)
	connectivity := chainClient.ValidateConnectivity(probeCtx)
	cancelProbe()
	for chainID, ok := range connectivity {
		obslog.L().Info("rpc_connectivity", zap.Uint64("chain_id", chainID), zap.Bool("ok", ok))
	}
	if !connectivity[cfg.EscrowChainID] {
		obslog.L().Warn("escrow chain unreachable at boot; poller will keep retrying",
			zap.Uint64("chain_id", cfg.EscrowChainID))
	}
	obslog.L().Info("settler_identity", zap.String("address", signer.Address().Hex()))

	go pollerSvc.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutting_down")

	stop() // halts poller and settlement worker
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("http shutdown error", zap.Error(err))
	}
	settler.Wait()
}
