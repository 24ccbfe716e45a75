package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"portfolio-agent-go/internal/api/handler"
	"portfolio-agent-go/internal/api/router"
	"portfolio-agent-go/internal/config"
	appCoreLogger "portfolio-agent-go/internal/logger"
	"portfolio-agent-go/internal/outbox"
	"portfolio-agent-go/internal/portfolio"
	"portfolio-agent-go/internal/processor"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/tracing"
)

var (
	version     = "1.0.0"              //nolint:gochecknoglobals
	serviceName = "portfolio-agent-go" //nolint:gochecknoglobals
)

// @title Portfolio Agent API
// @version 1.0
// @description 简历结构化提取与作品集生成服务
// @BasePath /api/v1
func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化链路追踪
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitTracerProvider(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			glog.Fatalf("初始化链路追踪失败: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracing(shutdownCtx); err != nil {
				glog.Warnf("关闭链路追踪失败: %v", err)
			}
		}()
		glog.Info("链路追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg, appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close(appCoreLogger.Logger)
	glog.Info("存储服务初始化成功")

	// 启动outbox消息中继
	messageRelay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, appCoreLogger.Logger)
	messageRelay.Start()
	glog.Info("消息中继服务已启动")

	// 初始化章节提取服务（LLM引擎、PDF解析器、熔断器）
	extractionSvc, err := processor.NewSubmissionService(ctx, cfg, storageManager, &appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化提取服务失败: %v", err)
	}
	glog.Info("提取服务初始化成功")

	portfolioSvc := portfolio.NewService(storageManager, portfolio.NewGenerator(appCoreLogger.Logger), appCoreLogger.Logger)
	glog.Info("作品集服务初始化成功")

	portfolioHandler := handler.NewPortfolioHandler(cfg, storageManager, extractionSvc, portfolioSvc, appCoreLogger.Logger)
	glog.Info("PortfolioHandler初始化成功")

	go func() {
		if err := portfolioHandler.StartExtractionConsumer(ctx); err != nil {
			glog.Fatalf("启动提取消费者失败: %v", err)
		}
		if err := portfolioHandler.StartPortfolioConsumer(ctx); err != nil {
			glog.Fatalf("启动作品集消费者失败: %v", err)
		}
		glog.Info("所有消费者已启动")
	}()

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg, portfolioHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	messageRelay.Stop()
	glog.Info("消息中继服务已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("无法创建日志目录: %v", err)
	}
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	level := zerolog.DebugLevel
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Caller().
		Str("app", serviceName).
		Str("version", version).
		Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	// Hertz的glog统一走zerolog适配器
	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelDebug)

	log.Println("Logger initialized with Zerolog, writing to console and file:", logFilePath)
}
