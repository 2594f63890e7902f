package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Display    DisplayConfig    `yaml:"display"`
	Timing     TimingConfig     `yaml:"timing"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Pilot      PilotConfig      `yaml:"pilot"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	// 0 表示不启动控制台
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// 为空则不落库；mysql 或 sqlite
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
	// sqlite 文件路径
	Path string `yaml:"path"`
}

func (d DatabaseConfig) Enabled() bool { return d.Driver != "" }

type DisplayConfig struct {
	// ebiten/virtual/paced
	Backend    string  `yaml:"backend"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	RefreshHz  float64 `yaml:"refresh_hz"`
	// 启动时测量刷新率用的帧数，0 表示不测
	MeasureFrames int `yaml:"measure_frames"`
}

type TimingConfig struct {
	// 起止判断的容差，秒；不写为 0.001，可以显式写 0
	FrameTolerance *float64 `yaml:"frame_tolerance"`
}

// DefaultFrameTolerance 秒
const DefaultFrameTolerance = 0.001

func (t TimingConfig) Tolerance() time.Duration {
	v := DefaultFrameTolerance
	if t.FrameTolerance != nil {
		v = *t.FrameTolerance
	}
	return time.Duration(v * float64(time.Second))
}

type ExperimentConfig struct {
	Name        string `yaml:"name"`
	Participant string `yaml:"participant"`
	Session     string `yaml:"session"`
	Conditions  string `yaml:"conditions"`
	Seed        int64  `yaml:"seed"`
	OutputDir   string `yaml:"output_dir"`
	// 指导语图片
	Images ImagesConfig `yaml:"images"`
}

type ImagesConfig struct {
	Instruction string `yaml:"instruction"`
	PractiseEnd string `yaml:"practise_end"`
}

// PilotConfig 自动按键，无人值守试跑
type PilotConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Keys     []string `yaml:"keys"`
	Interval float64  `yaml:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) ApplyDefaults() {
	if c.Display.Backend == "" {
		c.Display.Backend = "ebiten"
	}
	if c.Display.Width == 0 {
		c.Display.Width = 1920
	}
	if c.Display.Height == 0 {
		c.Display.Height = 1080
	}
	if c.Display.RefreshHz == 0 {
		c.Display.RefreshHz = 60
	}
	if c.Timing.FrameTolerance == nil {
		v := DefaultFrameTolerance
		c.Timing.FrameTolerance = &v
	}
	if c.Experiment.Name == "" {
		c.Experiment.Name = "GTDT_P"
	}
	if c.Experiment.Session == "" {
		c.Experiment.Session = "001"
	}
	if c.Experiment.OutputDir == "" {
		c.Experiment.OutputDir = "data"
	}
	if c.Pilot.Interval == 0 {
		c.Pilot.Interval = 0.5
	}
	if len(c.Pilot.Keys) == 0 {
		c.Pilot.Keys = []string{"p", "space"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
}

func (c *Config) Validate() error {
	switch c.Display.Backend {
	case "ebiten", "virtual", "paced":
	default:
		return fmt.Errorf("配置错误: 未知的显示后端 %q", c.Display.Backend)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "mysql", "sqlite":
	default:
		return fmt.Errorf("配置错误: 未知的数据库驱动 %q", c.Database.Driver)
	}
	if strings.EqualFold(c.Database.Driver, "sqlite") && c.Database.Path == "" {
		return fmt.Errorf("配置错误: sqlite 需要 database.path")
	}
	if tol := c.Timing.FrameTolerance; tol != nil && (*tol < 0 || *tol > 0.1) {
		return fmt.Errorf("配置错误: frame_tolerance %v 超出范围 [0, 0.1]", *tol)
	}
	if c.Display.RefreshHz <= 0 {
		return fmt.Errorf("配置错误: refresh_hz 必须为正")
	}
	if c.Experiment.Conditions == "" {
		return fmt.Errorf("配置错误: 缺少 experiment.conditions")
	}
	return nil
}
