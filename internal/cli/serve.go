package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crawlsync/internal/handler"
	"crawlsync/internal/job"
	"crawlsync/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ServeOptions struct {
	*RootOptions
	NoCrawl bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, outbox dispatcher and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoCrawl, "no-crawl", false, "do not start the periodic crawl job")
	return cmd
}

func runServe(opts *ServeOptions) error {
	cfg := opts.Config()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	index, err := a.searchClient()
	if err != nil {
		return err
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher, err := job.NewOutboxDispatcher(a.db, index, a.redis, &cfg.Dispatcher, nil)
	if err != nil {
		return err
	}
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	pruneJob := job.NewOutboxPruneJob(a.db, &cfg.Dispatcher)
	go pruneJob.Start(ctx)

	var crawlJob *job.CrawlJob
	if !opts.NoCrawl && (len(cfg.Crawler.Feeds) > 0 || len(cfg.Crawler.Pages) > 0) {
		crawlJob = job.NewCrawlJob(a.feeds, a.ingest, &cfg.Crawler)
		go crawlJob.Start(ctx)
	}

	router := handler.SetupRouter(handler.NewHandler(a.ingest, a.feeds, a.admin))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("服务启动失败", zap.Error(err))
	}

	logger.Info("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP 服务关闭异常", zap.Error(err))
	}

	// 不再发起新的爬取和清理
	if crawlJob != nil {
		crawlJob.Stop()
	}
	pruneJob.Stop()

	// 先让调度器处理完当前事件，再取消其余后台任务
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("调度器关闭超时", zap.Error(err))
	}
	cancel()
	<-dispatcherDone

	logger.Info("服务已关闭")
	return nil
}
