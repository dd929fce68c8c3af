package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager 统一配置管理器
type Manager struct {
	mu           sync.RWMutex
	config       *Config
	viper        *viper.Viper
	configPath   string
	watchEnabled bool
}

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithConfigPath 设置配置文件搜索路径
func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		m.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控热重载
func WithWatchEnabled(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.watchEnabled = enabled
	}
}

// NewManager 创建配置管理器
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load 加载配置。配置文件不存在时使用默认值，解析或校验失败时返回错误。
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config != nil {
		return m.config, nil
	}

	v := viper.New()

	v.SetConfigName("relax-config")
	v.SetConfigType("yaml")
	if m.configPath != "" {
		v.AddConfigPath(m.configPath)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RELAX")
	v.AutomaticEnv()

	setDefaultValues(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	m.config = &config
	m.viper = v

	if m.watchEnabled {
		m.watchConfig()
	}

	return m.config, nil
}

// Get 获取配置（未加载时自动加载）
func (m *Manager) Get() (*Config, error) {
	m.mu.RLock()
	if m.config != nil {
		defer m.mu.RUnlock()
		return m.config, nil
	}
	m.mu.RUnlock()

	return m.Load()
}

// Reload 重新加载配置，解析或校验失败时保留旧配置
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.viper == nil {
		return fmt.Errorf("config not loaded yet")
	}

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config file: %w", err)
	}

	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	m.config = &config
	return nil
}

// watchConfig 监控配置文件变化，调用方需持有锁
func (m *Manager) watchConfig() {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.Reload(); err != nil {
			log.Printf("⚠️ 配置热重载失败，保留旧配置: %v", err)
			return
		}
		log.Printf("配置已热重载: %s", e.Name)
	})
}

// setDefaultValues 注册默认值
func setDefaultValues(v *viper.Viper) {
	def := Default()

	v.SetDefault("phases.inhale", def.Phases.Inhale)
	v.SetDefault("phases.hold", def.Phases.Hold)
	v.SetDefault("phases.exhale", def.Phases.Exhale)
	v.SetDefault("phases.rest", def.Phases.Rest)

	v.SetDefault("engine.tick_interval", def.Engine.TickInterval)
	v.SetDefault("engine.pause_timeout", def.Engine.PauseTimeout)
	v.SetDefault("engine.debounce_window", def.Engine.DebounceWindow)

	v.SetDefault("snapshot.dir", def.Snapshot.Dir)

	v.SetDefault("archive.enabled", def.Archive.Enabled)
	v.SetDefault("archive.host", def.Archive.Host)
	v.SetDefault("archive.port", def.Archive.Port)
	v.SetDefault("archive.user", def.Archive.User)
	v.SetDefault("archive.password", def.Archive.Password)
	v.SetDefault("archive.dbname", def.Archive.DBName)
	v.SetDefault("archive.sslmode", def.Archive.SSLMode)

	v.SetDefault("api.addr", def.API.Addr)
	v.SetDefault("api.read_timeout", def.API.ReadTimeout)
	v.SetDefault("api.write_timeout", def.API.WriteTimeout)
	v.SetDefault("api.allowed_origins", def.API.AllowedOrigins)

	v.SetDefault("audio.init_timeout", def.Audio.InitTimeout)
	v.SetDefault("audio.init_max_interval", def.Audio.InitMaxInterval)
}

// 全局配置管理器实例
var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetGlobalManager 获取全局配置管理器
func GetGlobalManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(
			WithWatchEnabled(true),
		)
	})
	return globalManager
}

// GetGlobalConfig 获取全局配置
func GetGlobalConfig() (*Config, error) {
	return GetGlobalManager().Get()
}
