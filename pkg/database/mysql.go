package database

import (
	"fmt"

	"shortlink-engine/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// InitMySQL 建立 MySQL 连接并迁移全部表。
// TranslateError 必须开启：短码唯一性的原子裁决依赖
// 唯一索引冲突被翻译成 gorm.ErrDuplicatedKey。
func InitMySQL(host string, port int, user, password, dbName string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)

	connection, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %v", err)
	}

	if err := Migrate(connection); err != nil {
		return nil, err
	}
	return connection, nil
}

// Migrate 自动迁移全部模型
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Link{},
		&model.ClickEvent{},
		&model.User{},
		&model.PairingCode{},
		&model.TelegramBinding{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %v", err)
	}
	return pinShortCodeCollation(db)
}

// pinShortCodeCollation 把 short_code 锁定为二进制排序规则。
// MySQL 的 utf8mb4 默认排序规则不区分大小写，查找和唯一索引会把
// ABC123 和 abc123 折叠成同一个短码，这里必须是字节级比较。
func pinShortCodeCollation(db *gorm.DB) error {
	if db.Dialector.Name() != "mysql" {
		return nil
	}
	err := db.Exec("ALTER TABLE links MODIFY short_code VARCHAR(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL").Error
	if err != nil {
		return fmt.Errorf("锁定短码排序规则失败: %v", err)
	}
	return nil
}
