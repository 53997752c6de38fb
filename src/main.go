package main

import (
	"context"
	"fmt"
	"os"

	"RentalInsight/src/config"
	"RentalInsight/src/datapush"
	"RentalInsight/src/processor"
	"RentalInsight/src/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	configFile     = "config.json"
	dataConfigFile = "dataconfig.json"
)

var (
	// 命令行参数
	configDir  string
	inputPath  string
	outputPath string
	exportXLSX string
	mailOnce   bool

	cfg     *config.Config
	dcfg    *config.DataConfig
	logger  *storage.Logger
	metrics *processor.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "rentalinsight",
	Short: "租金数据清洗与仪表盘数据服务",
	Long: `rentalinsight 清洗Zillow城市一居室月租金宽表:
删除缺失超过80%的行，行内线性插值，首尾填充，删除地区/州为空的行。

不带子命令时等同于 clean。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, dcfg, err = config.LoadConfig(configDir, configFile, dataConfigFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		applyFlagOverrides(cmd)

		logger, err = storage.NewLogger(cfg.LogName)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		metrics = processor.NewMetrics()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
	RunE: runClean,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "执行一次清洗后退出",
	RunE:  runClean,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "先清洗一次，输入文件被写入或创建时重新清洗",
	RunE:  runWatch,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "先清洗一次，之后按schedule.interval定时清洗",
	RunE:  runSchedule,
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "从邮箱拉取最新的数据附件并清洗，可将结果回信",
	Long: `按email.check_interval检查未读邮件，取主题包含email.target_subject的最新一封，
保存其csv/xlsx附件到data_dir后清洗。配置了send_email.to时将清洗结果作为附件发送。`,
	RunE: runMail,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "加载清洗结果并提供仪表盘数据接口，收到SIGHUP时重新加载",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "./config", "配置目录(config.json、dataconfig.json)")
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "原始数据文件，覆盖配置中的input")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "清洗结果csv，覆盖配置中的output")
	rootCmd.PersistentFlags().StringVar(&exportXLSX, "xlsx", "", "同时导出xlsx到该路径")

	mailCmd.Flags().BoolVar(&mailOnce, "once", false, "只检查一次邮箱")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides 命令行参数优先于配置文件和环境变量
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input = inputPath
	}
	if flags.Changed("output") {
		cfg.Output = outputPath
	}
	if flags.Changed("xlsx") {
		cfg.ExportXLSX = exportXLSX
	}
}

// newJob 按配置组装清洗任务，配置了钉钉机器人时附带通知
func newJob(snapshot *processor.DataFrameWrapper, extra ...processor.Notifier) *processor.Job {
	opts := []processor.Option{processor.WithMetrics(metrics)}
	if snapshot != nil {
		opts = append(opts, processor.WithSnapshot(snapshot))
	}
	if cfg.DingTalk.Webhook != "" {
		opts = append(opts, processor.WithNotifier(datapush.NewDingTalkRobot(cfg.DingTalk.Webhook, cfg.DingTalk.Secret)))
	}
	for _, n := range extra {
		opts = append(opts, processor.WithNotifier(n))
	}
	return processor.NewJob(cfg, dcfg, logger, opts...)
}

// runOnce 执行一次清洗，长时间运行的命令只记录错误
func runOnce(ctx context.Context, job *processor.Job, input string) {
	if _, err := job.RunFile(ctx, input); err != nil && ctx.Err() == nil {
		logger.Error("本轮清洗失败", zap.String("input", input), zap.Error(err))
	}
}
