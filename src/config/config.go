package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// 默认文件路径，未提供配置文件时使用
const (
	DefaultInput      = "City_MedianRentalPrice_1Bedroom.csv"
	DefaultOutput     = "cleaned_rental_data.csv"
	DefaultLogName    = "app.log"
	DefaultLogMaxSize = "10 * 1024 * 1024"
	DefaultPidFile    = "rentalinsight.pid"
	DefaultAddr       = ":8080"

	// EnvPrefix 环境变量前缀，例如 RENTAL_INPUT
	EnvPrefix = "RENTAL"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Input      string `json:"input" envconfig:"INPUT"`             // 原始数据文件(csv/xlsx)
	Output     string `json:"output" envconfig:"OUTPUT"`           // 清洗结果(始终为csv格式)
	ExportXLSX string `json:"export_xlsx" envconfig:"EXPORT_XLSX"` // 可选的xlsx导出路径
	SheetName  string `json:"sheet_name" envconfig:"SHEET_NAME"`   // xlsx输入的工作表，为空时取第一个

	DataDir    string `json:"data_dir" envconfig:"DATA_DIR"` // 邮件附件保存目录
	LogName    string `json:"log_name" envconfig:"LOG_NAME"`
	LogMaxSize string `json:"log_max_size" envconfig:"LOG_MAX_SIZE"`
	PidFile    string `json:"pid_file" envconfig:"PID_FILE"`

	Schedule struct {
		Interval Duration `json:"interval" envconfig:"INTERVAL"` // 定时清洗间隔
	} `json:"schedule" envconfig:"SCHEDULE"`

	Email struct {
		Server        string   `json:"server" envconfig:"SERVER"`                 // 邮件服务器地址
		Username      string   `json:"username" envconfig:"USERNAME"`             // 邮箱用户名
		Password      string   `json:"password" envconfig:"PASSWORD"`             // 邮箱密码
		TargetSubject string   `json:"target_subject" envconfig:"TARGET_SUBJECT"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval" envconfig:"CHECK_INTERVAL"` // 检查新邮件的间隔时间
	} `json:"email" envconfig:"EMAIL"`

	SendEmail struct {
		Server   string   `json:"server" envconfig:"SERVER"`
		Username string   `json:"username" envconfig:"USERNAME"`
		Password string   `json:"password" envconfig:"PASSWORD"`
		To       []string `json:"to" envconfig:"TO"`
		Subject  string   `json:"subject" envconfig:"SUBJECT"`
	} `json:"send_email" envconfig:"SEND_EMAIL"`

	DingTalk struct {
		Webhook string `json:"webhook" envconfig:"WEBHOOK"`
		Secret  string `json:"secret" envconfig:"SECRET"` // 加签密钥，可为空
	} `json:"dingtalk" envconfig:"DINGTALK"`

	Server struct {
		Addr string `json:"addr" envconfig:"ADDR"`
	} `json:"server" envconfig:"SERVER"`
}

// DataConfig 数据表结构配置
type DataConfig struct {
	Columns struct {
		Region string `json:"region"`
		State  string `json:"state"`
		Metro  string `json:"metro"`
		County string `json:"county"`
	} `json:"columns"`

	// IndexPlaceholder 导出工具写入的无名索引列名
	IndexPlaceholder string `json:"index_placeholder"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
)

// Defaults 返回与原始脚本一致的固定默认配置
func Defaults() *Config {
	cfg := &Config{
		Input:      DefaultInput,
		Output:     DefaultOutput,
		DataDir:    ".",
		LogName:    DefaultLogName,
		LogMaxSize: DefaultLogMaxSize,
		PidFile:    DefaultPidFile,
	}
	cfg.Schedule.Interval = Duration(24 * time.Hour)
	cfg.Email.CheckInterval = Duration(5 * time.Minute)
	cfg.SendEmail.Subject = "cleaned rental data"
	cfg.Server.Addr = DefaultAddr
	return cfg
}

// DefaultDataConfig 返回Zillow城市租金数据的列名
func DefaultDataConfig() *DataConfig {
	dcfg := &DataConfig{IndexPlaceholder: "Unnamed: 0"}
	dcfg.Columns.Region = "RegionName"
	dcfg.Columns.State = "State"
	dcfg.Columns.Metro = "Metro"
	dcfg.Columns.County = "CountyName"
	return dcfg
}

// LoadConfig 加载配置(进程内只加载一次)
// 参数:
//
//	jsonFolder: 配置目录
//	jsonFile: 主配置文件名
//	dataJsonFile: 数据配置文件名
//
// 文件不存在时使用默认值，环境变量优先级最高
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, nil, fmt.Errorf("读取环境变量失败: %w", err)
	}

	return cfg, dcfg, nil
}

// readFile 读取文件，文件不存在时返回nil
func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	cfg := Defaults()
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			errChan <- fmt.Errorf("解析Config失败: %w", err)
			return
		}
	}
	resultChan <- cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, dcfg); err != nil {
			errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
			return
		}
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON和环境变量中的"5m"这类写法
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.Decode(s)
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Decode 实现envconfig.Decoder接口
func (d *Duration) Decode(value string) error {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// IdentityColumns 返回标识列，顺序固定: 地区、州、都市区、县
func (dc *DataConfig) IdentityColumns() []string {
	return []string{dc.Columns.Region, dc.Columns.State, dc.Columns.Metro, dc.Columns.County}
}

// RequiredColumns 返回清洗后不允许为空的标识列
func (dc *DataConfig) RequiredColumns() []string {
	return []string{dc.Columns.Region, dc.Columns.State}
}
