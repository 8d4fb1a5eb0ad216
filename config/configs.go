package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// MainConfig 启动时由 LoadConfig 填充
var MainConfig = Default()

var ErrUnknownSite = errors.New("unknown site")

type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Database DatabaseConfig        `yaml:"database"`
	Mesh     MeshConfig            `yaml:"mesh"`
	Cache    CacheConfig           `yaml:"cache"`
	Log      LogConfig             `yaml:"log"`
	Sites    map[string]SiteConfig `yaml:"sites"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin 模式：debug / release / test
}

// MeshConfig 构网参数
type MeshConfig struct {
	Interval       float64 `yaml:"interval"`
	Workers        int     `yaml:"workers"`
	HonorHoles     bool    `yaml:"honor_holes"`
	ValidateSimple bool    `yaml:"validate_simple"`
	MaxSamples     int     `yaml:"max_samples"` // 0 取默认值，负数不限制
}

type CacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SiteConfig 一个水域站点：地图中心、水位级数和渲染参数
type SiteConfig struct {
	Center [2]float64    `yaml:"center" json:"center"` // [lng, lat]
	Levels int           `yaml:"levels" json:"levels"`
	Water  WaterControls `yaml:"water" json:"water"`
}

// WaterControls 渲染端水面材质参数，服务端只负责下发
type WaterControls struct {
	TextSize   float64 `yaml:"text_size" json:"textSize"`
	Shiny      float64 `yaml:"shiny" json:"shiny"`
	Spec       float64 `yaml:"spec" json:"spec"`
	Diffuse    float64 `yaml:"diffuse" json:"diffuse"`
	WaterColor string  `yaml:"water_color" json:"waterColor"`
	RF0        float64 `yaml:"rf0" json:"rf0"`
	Level      int     `yaml:"level" json:"level"` // 初始显示的水位，从 1 开始
}

func DefaultWaterControls() WaterControls {
	return WaterControls{
		TextSize:   0.3,
		Shiny:      22,
		Spec:       1.7,
		Diffuse:    5.1,
		WaterColor: "#001e0f",
		RF0:        0.13,
		Level:      1,
	}
}

func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8426", Mode: "release"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "hydromesh.db"},
		Mesh:     MeshConfig{Interval: 10, Workers: 4, MaxSamples: 4000000},
		Cache:    CacheConfig{MaxSize: 256, TTL: 30 * time.Minute},
		Log:      LogConfig{Level: "info", Format: "text"},
		Sites:    map[string]SiteConfig{},
	}
}

// LoadConfig 读取 YAML 配置文件，缺省字段使用默认值
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Mesh.Interval == 0 {
		c.Mesh.Interval = def.Mesh.Interval
	}
	if c.Mesh.Workers <= 0 {
		c.Mesh.Workers = def.Mesh.Workers
	}
	if c.Mesh.MaxSamples == 0 {
		c.Mesh.MaxSamples = def.Mesh.MaxSamples
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = def.Cache.MaxSize
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Sites == nil {
		c.Sites = map[string]SiteConfig{}
	}
	dw := DefaultWaterControls()
	for name, s := range c.Sites {
		if s.Levels <= 0 {
			s.Levels = 1
		}
		if s.Water == (WaterControls{}) {
			s.Water = dw
		}
		if s.Water.Level <= 0 {
			s.Water.Level = 1
		}
		c.Sites[name] = s
	}
}

// Validate 检查配置中无法自动修正的错误
func (c *Config) Validate() error {
	if c.Mesh.Interval < 0 {
		return fmt.Errorf("mesh.interval must be positive, got %v", c.Mesh.Interval)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	for name, s := range c.Sites {
		if s.Center[1] <= -90 || s.Center[1] >= 90 {
			return fmt.Errorf("site %s: center latitude %v out of range", name, s.Center[1])
		}
		if s.Water.Level > s.Levels {
			return fmt.Errorf("site %s: initial level %d exceeds level count %d", name, s.Water.Level, s.Levels)
		}
	}
	return nil
}

// Site 按名称查找站点配置
func (c *Config) Site(name string) (SiteConfig, error) {
	s, ok := c.Sites[name]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
	}
	return s, nil
}

// SiteNames 排序后的站点名称
func (c *Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
