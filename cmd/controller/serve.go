package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/apiserver/interdomain"
	"shongo-controller/internal/apiserver/server"
	"shongo-controller/internal/config"
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/controller/domains"
	"shongo-controller/internal/controller/executor"
	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/infra"
	"shongo-controller/internal/shared/objstore"
	"shongo-controller/pkg/logging"
)

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller",
	Long: `serve starts the admin REST API, the inter-domain protocol endpoints and the
reservation event stream on the configured port.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting controller", "env", string(cfg.Env), "config", cfg.String(), "file", cfg.ConfigFilePath)

	inf, err := infra.New(cfg)
	if err != nil {
		return fmt.Errorf("init infrastructure: %w", err)
	}
	defer inf.Close()

	metrics := server.NewMetrics("shongo", nil)

	// 预约服务
	db := availability.NewDatabase(availability.Options{
		MaxDeviceAllocationDuration: cfg.Availability.MaxDeviceAllocationDuration,
		Logger:                      logger.Named("availability"),
	})
	svc, err := booking.NewService(booking.Options{
		Store:      inf.Storage,
		Database:   db,
		EventBus:   inf.EventBus,
		Dispatcher: executor.NewDispatcher(inf.Queue, 0, logger.Named("executor")),
		Recorder:   metrics,
		Scheduler: &scheduler.Config{
			Ranking:        cfg.Scheduler.Ranking,
			CallInitiation: scheduler.CallInitiation(cfg.Scheduler.CallInitiation),
		},
		Lookahead: cfg.Availability.Lookahead,
		Logger:    logger.Named("booking"),
	})
	if err != nil {
		return err
	}
	if err := svc.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild availability: %w", err)
	}

	// 对端 CA 证书
	var certs *objstore.CertificateStore
	if cfg.MinIO.Endpoint != "" {
		client, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return err
		}
		certs = objstore.NewCertificateStore(client)
	} else if cfg.InterDomain.PKIClientAuth {
		logger.Warn("MinIO is not configured, only tls.ca_file is trusted for peer certificates")
	}

	if err := resolveServerCerts(cfg); err != nil {
		return err
	}

	// 域间协议
	authenticator := auth.NewAuthenticator(auth.Config{
		JWTSecret:      cfg.Auth.JWTSecret,
		AccessTokenTTL: cfg.InterDomain.AccessTokenTTL,
		PKIClientAuth:  cfg.InterDomain.PKIClientAuth,
	}, inf.Storage)
	idHandler := interdomain.NewHandler(authenticator, svc, inf.Storage, logger.Named("interdomain"))

	connector, err := newConnector(ctx, cfg, certs, inf, logger)
	if err != nil {
		return err
	}
	go connector.Start(ctx)

	h := server.NewHandler(server.Options{
		Booking:      svc,
		Domains:      inf.Storage,
		Connector:    connector,
		Certificates: certificateStore(certs),
		Interdomain:  idHandler,
		EventBus:     inf.EventBus,
		Metrics:      metrics,
		CORSOrigins:  cfg.APIServer.CORSOrigins,
		Logger:       logger.Named("api"),
	})

	srv := &http.Server{
		Addr:        ":" + cfg.APIServer.Port,
		Handler:     withCACertEndpoint(h.Router(), cfg.TLS.CAFile, logger),
		ReadTimeout: 15 * time.Second,
		// WebSocket 连接长期存活，写超时由网关自己控制
		IdleTimeout: 60 * time.Second,
		ErrorLog:    newServerErrorLog(logger.Named("http")),
	}
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	if cfg.TLS.Enabled {
		var cas *clientCAs
		if cfg.InterDomain.PKIClientAuth {
			if cas, err = newClientCAs(cfg.TLS.CAFile, certs, inf.Storage, logger.Named("pki")); err != nil {
				return err
			}
		}
		if srv.TLSConfig, err = serverTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cas); err != nil {
			return err
		}
		listener = &redirectingListener{Listener: listener}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Controller listening", "addr", srv.Addr, "tls", cfg.TLS.Enabled, "domain", cfg.InterDomain.LocalDomain)
		if cfg.TLS.Enabled {
			errCh <- srv.ServeTLS(listener, "", "")
		} else {
			errCh <- srv.Serve(listener)
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown error")
	}
	logger.Info("Controller stopped")
	return nil
}

// newConnector 创建访问对端域的客户端（带能力缓存）
func newConnector(ctx context.Context, cfg *config.Config, certs *objstore.CertificateStore, inf *infra.Infrastructure, logger *logging.Logger) (*domains.CachedConnector, error) {
	list, err := inf.Storage.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	var certFile, keyFile string
	if cfg.InterDomain.PKIClientAuth {
		certFile, keyFile = cfg.TLS.CertFile, cfg.TLS.KeyFile
	}
	var pooler domains.CertPooler
	if certs != nil {
		pooler = certs
	}
	tlsCfg, err := domains.ClientTLSConfig(ctx, pooler, list, certFile, keyFile)
	if err != nil {
		return nil, err
	}
	c, err := domains.NewConnector(domains.Options{
		Domains:     inf.Storage,
		LocalDomain: cfg.InterDomain.LocalDomain,
		Password:    cfg.InterDomain.BasicAuthPassword,
		Timeout:     cfg.InterDomain.CommandTimeout,
		TLSConfig:   tlsCfg,
		Logger:      logger.Named("domains"),
	})
	if err != nil {
		return nil, err
	}
	return domains.NewCachedConnector(c, inf.Cache, cfg.InterDomain.CacheRefreshRate), nil
}

// certificateStore 未配置对象存储时返回 nil 接口，证书上传接口返回 503
func certificateStore(certs *objstore.CertificateStore) server.CertificateStore {
	if certs == nil {
		return nil
	}
	return certs
}
