package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stimrun/internal/config"
	"stimrun/internal/log"
	"stimrun/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 未启用数据库时为 nil
var DB *gorm.DB

func InitDB(cfg *config.Config, lg *log.Logger) error {
	if !cfg.Database.Enabled() {
		lg.Infof("未配置数据库，只写本地文件")
		return nil
	}
	conn, err := Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	DB = conn
	lg.Infof("数据库初始化成功 (%s)", cfg.Database.Driver)
	return nil
}

func Open(c config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(c.Driver) {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.User,
			c.Password,
			c.Host,
			c.Port,
			c.DBName,
			c.Charset,
		)
		dialector = mysql.Open(dsn)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
		dialector = sqlite.Open(c.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动 %q", c.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return conn, nil
}

// Migrate 自动迁移
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&model.Session{},
		&model.TrialRow{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}
