package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RentalInsight/src/datasource/email"
	"RentalInsight/src/datasource/file"
	"RentalInsight/src/processor"
	"RentalInsight/src/utils"
	"RentalInsight/src/webui"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runClean(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	file.SetupSignalHandler(cancel)

	_, err := newJob(nil).Run(ctx)
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := startDaemon(nil)
	defer stop()

	job := newJob(nil)
	runOnce(ctx, job, cfg.Input)

	monitor, err := file.NewFileMonitor(cfg.Input)
	if err != nil {
		return fmt.Errorf("创建文件监控失败: %w", err)
	}
	defer monitor.Close()

	logger.Info("开始监控输入文件", zap.String("input", cfg.Input))
	return monitor.Watch(ctx, func(path string) {
		logger.Info("输入文件已更新", zap.String("path", path))
		runOnce(ctx, job, path)
	})
}

func runSchedule(cmd *cobra.Command, args []string) error {
	interval := time.Duration(cfg.Schedule.Interval)
	if interval <= 0 {
		return fmt.Errorf("schedule.interval必须大于0: %s", interval)
	}

	ctx, stop := startDaemon(nil)
	defer stop()

	job := newJob(nil)
	runOnce(ctx, job, cfg.Input)

	return runEvery(ctx, interval, func() { runOnce(ctx, job, cfg.Input) })
}

func runMail(cmd *cobra.Command, args []string) error {
	if cfg.Email.Server == "" {
		return errors.New("未配置email.server")
	}

	var notifiers []processor.Notifier
	if len(cfg.SendEmail.To) > 0 {
		notifiers = append(notifiers, email.NewSender(cfg.SendEmail.Server, cfg.SendEmail.Username,
			cfg.SendEmail.Password, cfg.SendEmail.To, cfg.SendEmail.Subject))
	}
	job := newJob(nil, notifiers...)
	client := email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password, logger)
	handler := email.NewAttachmentHandler(cfg.Email.TargetSubject, cfg.DataDir, cfg.SheetName)

	// 附件保存并清洗成功后邮件才会被标记已读
	check := func(ctx context.Context) error {
		_, err := email.CheckAndProcessEmails(client, cfg.Email.TargetSubject, logger, func(msg *email.Email) error {
			path, err := handler.Handle(msg, logger)
			if err != nil || path == "" {
				return err
			}
			if _, err := job.RunFile(ctx, path); err != nil {
				return err
			}
			handler.MarkProcessed(msg.UID)
			return nil
		})
		return err
	}

	if mailOnce {
		return check(context.Background())
	}

	interval := time.Duration(cfg.Email.CheckInterval)
	if interval <= 0 {
		return fmt.Errorf("email.check_interval必须大于0: %s", interval)
	}

	ctx, stop := startDaemon(nil)
	defer stop()

	poll := func() {
		if err := check(ctx); err != nil && ctx.Err() == nil {
			logger.Error("检查处理邮件失败", zap.Error(err))
		}
	}
	poll()
	logger.Info("邮件监控服务已启动", zap.Duration("interval", interval))
	return runEvery(ctx, interval, poll)
}

func runServe(cmd *cobra.Command, args []string) error {
	snapshot := &processor.DataFrameWrapper{}
	load := func() {
		if err := snapshot.Load(cfg.Output); err != nil {
			logger.Warning("加载清洗结果失败", zap.String("path", cfg.Output), zap.Error(err))
			return
		}
		logger.Info("已加载清洗结果", zap.String("path", cfg.Output), zap.Int("rows", snapshot.GetDF().Nrow()))
	}
	load()

	ctx, stop := startDaemon(load)
	defer stop()

	srv := webui.NewServer(cfg.Server.Addr, dcfg, snapshot, logger, metrics)
	return srv.ListenAndServe(ctx)
}

// runEvery 按固定间隔执行fn，阻塞直到ctx结束
func runEvery(ctx context.Context, interval time.Duration, fn func()) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if err := c.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}

	c.Start()
	defer c.Stop()

	logger.Info("定时任务已启动", zap.String("spec", spec))
	<-ctx.Done()
	return nil
}

// startDaemon 写pid文件并处理信号
// SIGINT/SIGTERM: 取消ctx
// SIGHUP: 重新打开日志文件，检查是否需要轮转，再调用onHangup
// 返回的stop用于释放信号和删除pid文件
func startDaemon(onHangup func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	if err := utils.WritePidFile(cfg.PidFile); err != nil {
		logger.Warning("写入pid文件失败", zap.String("path", cfg.PidFile), zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig != syscall.SIGHUP {
					logger.Info("收到退出信号", zap.String("signal", sig.String()))
					cancel()
					return
				}
				reopenLog()
				if onHangup != nil {
					onHangup()
				}
			}
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
		if err := utils.RemovePidFile(cfg.PidFile); err != nil {
			logger.Warning("删除pid文件失败", zap.Error(err))
		}
	}
}

func reopenLog() {
	if err := logger.Reopen(cfg.LogName); err != nil {
		fmt.Fprintln(os.Stderr, "重新打开日志文件失败:", err)
		return
	}
	if err := logger.CheckRotate(cfg.LogMaxSize); err != nil {
		logger.Warning("日志轮转失败", zap.Error(err))
	}
	logger.Info("收到SIGHUP，日志文件已重新打开")
}
