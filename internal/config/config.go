package config

import (
	"fmt"
	"time"
)

// PhaseConfig 呼吸阶段时长配置
type PhaseConfig struct {
	Inhale time.Duration `yaml:"inhale" mapstructure:"inhale"`
	Hold   time.Duration `yaml:"hold" mapstructure:"hold"`
	Exhale time.Duration `yaml:"exhale" mapstructure:"exhale"`
	Rest   time.Duration `yaml:"rest" mapstructure:"rest"`
}

// EngineSettings 引擎核心参数
type EngineSettings struct {
	TickInterval   time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	PauseTimeout   time.Duration `yaml:"pause_timeout" mapstructure:"pause_timeout"`
	DebounceWindow time.Duration `yaml:"debounce_window" mapstructure:"debounce_window"`
}

// SnapshotConfig 快照持久化配置
type SnapshotConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ArchiveConfig 结果归档配置。Enabled=false时使用内存归档。
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// APIConfig 表现层HTTP接口配置
type APIConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AudioConfig 音频引擎配置
type AudioConfig struct {
	InitTimeout     time.Duration `yaml:"init_timeout" mapstructure:"init_timeout"`
	InitMaxInterval time.Duration `yaml:"init_max_interval" mapstructure:"init_max_interval"`
}

// Config 引擎完整配置
type Config struct {
	Phases   PhaseConfig    `yaml:"phases" mapstructure:"phases"`
	Engine   EngineSettings `yaml:"engine" mapstructure:"engine"`
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`
	Archive  ArchiveConfig  `yaml:"archive" mapstructure:"archive"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Audio    AudioConfig    `yaml:"audio" mapstructure:"audio"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Phases: PhaseConfig{
			Inhale: 4 * time.Second,
			Hold:   2 * time.Second,
			Exhale: 6 * time.Second,
			Rest:   2 * time.Second,
		},
		Engine: EngineSettings{
			TickInterval:   250 * time.Millisecond,
			PauseTimeout:   30 * time.Minute,
			DebounceWindow: 300 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Dir: "./data",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "relax_sessions",
			SSLMode: "disable",
		},
		API: APIConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Audio: AudioConfig{
			InitTimeout:     10 * time.Second,
			InitMaxInterval: 2 * time.Second,
		},
	}
}

// Validate 校验配置有效性
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"phases.inhale": c.Phases.Inhale,
		"phases.hold":   c.Phases.Hold,
		"phases.exhale": c.Phases.Exhale,
		"phases.rest":   c.Phases.Rest,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Engine.TickInterval <= 0 || c.Engine.TickInterval > time.Second {
		return fmt.Errorf("engine.tick_interval must be in (0, 1s], got %v", c.Engine.TickInterval)
	}
	if c.Engine.PauseTimeout <= 0 {
		return fmt.Errorf("engine.pause_timeout must be positive, got %v", c.Engine.PauseTimeout)
	}
	if c.Engine.DebounceWindow < 0 {
		return fmt.Errorf("engine.debounce_window must not be negative, got %v", c.Engine.DebounceWindow)
	}

	if c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir must not be empty")
	}

	if c.Archive.Enabled {
		if c.Archive.Host == "" || c.Archive.Port <= 0 || c.Archive.DBName == "" {
			return fmt.Errorf("archive config incomplete: host=%q port=%d dbname=%q",
				c.Archive.Host, c.Archive.Port, c.Archive.DBName)
		}
	}

	if c.API.Addr == "" {
		return fmt.Errorf("api.addr must not be empty")
	}

	return nil
}

// PhaseDurations 导出为呼吸周期阶段时长数组
func (c *Config) PhaseDurations() [4]time.Duration {
	return [4]time.Duration{c.Phases.Inhale, c.Phases.Hold, c.Phases.Exhale, c.Phases.Rest}
}
