package config

import "fmt"

// DatabaseConfig 水位多边形存储
// sqlite 使用 Path；postgres / mysql 优先使用 DSN，为空时按各字段拼接。
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
	LogSQL   bool   `yaml:"log_sql"`
}

// ConnString 返回对应驱动的连接串
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Username, d.Password, d.Dbname, d.Port)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.Username, d.Password, d.Host, d.Port, d.Dbname)
	default:
		if d.Path == "" {
			return "hydromesh.db"
		}
		return d.Path
	}
}
