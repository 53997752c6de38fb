// job.go
package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"RentalInsight/src/config"
	"RentalInsight/src/datasource/file"
	"RentalInsight/src/storage"

	"go.uber.org/zap"
)

// Notifier 清洗完成后的通知渠道(钉钉、邮件等)
type Notifier interface {
	Notify(ctx context.Context, res *Result) error
}

// Result 一次清洗任务的产出
type Result struct {
	Input      string
	Output     string
	ExportXLSX string
	Report     *Report
}

// Job 读取原始数据、清洗、写出结果；同一时刻只运行一次
type Job struct {
	cfg       *config.Config
	cleaner   *Cleaner
	logger    *storage.Logger
	metrics   *Metrics
	snapshot  *DataFrameWrapper
	notifiers []Notifier
	out       io.Writer

	mu sync.Mutex
}

type Option func(*Job)

func WithMetrics(m *Metrics) Option { return func(j *Job) { j.metrics = m } }

// WithSnapshot 清洗成功后用结果替换快照
func WithSnapshot(s *DataFrameWrapper) Option { return func(j *Job) { j.snapshot = s } }

func WithNotifier(n Notifier) Option { return func(j *Job) { j.notifiers = append(j.notifiers, n) } }

// WithReportWriter 诊断表格的输出位置，默认为标准输出
func WithReportWriter(w io.Writer) Option { return func(j *Job) { j.out = w } }

func NewJob(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger, opts ...Option) *Job {
	j := &Job{
		cfg:     cfg,
		cleaner: NewCleaner(dcfg),
		logger:  logger,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run 使用配置中的输入文件执行一次清洗
func (j *Job) Run(ctx context.Context) (*Result, error) {
	return j.RunFile(ctx, j.cfg.Input)
}

// RunFile 清洗指定的输入文件，结果写到配置的输出路径
// 通知失败只记录日志，不影响返回值
func (j *Job) RunFile(ctx context.Context, input string) (*Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t1 := time.Now()
	j.logger.Info("开始清洗", zap.String("input", input))

	res, err := j.run(input)
	if err != nil {
		j.metrics.Failed()
		j.logger.Error("清洗失败", zap.String("input", input), zap.Error(err))
		return nil, err
	}

	res.Report.Render(j.out)
	j.metrics.Observe(res.Report)
	j.logger.Info("清洗完成", append(res.Report.Fields(),
		zap.String("output", res.Output),
		zap.Duration("total", time.Since(t1)))...)

	for _, n := range j.notifiers {
		if err := n.Notify(ctx, res); err != nil {
			j.logger.Warning("发送通知失败", zap.Error(err))
		}
	}
	return res, nil
}

func (j *Job) run(input string) (*Result, error) {
	raw, err := file.ReadTable(input, j.cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("读取输入失败: %w", err)
	}

	cleaned, report, err := j.cleaner.Clean(raw)
	if err != nil {
		return nil, fmt.Errorf("清洗失败: %w", err)
	}

	res := &Result{Input: input, Output: j.cfg.Output, Report: report}
	if err := file.WriteCSV(cleaned, j.cfg.Output); err != nil {
		return nil, err
	}
	if j.cfg.ExportXLSX != "" {
		if err := file.SaveToExcel(cleaned, j.cfg.ExportXLSX); err != nil {
			return nil, err
		}
		res.ExportXLSX = j.cfg.ExportXLSX
	}

	if j.snapshot != nil {
		j.snapshot.SetDF(cleaned)
	}
	return res, nil
}
