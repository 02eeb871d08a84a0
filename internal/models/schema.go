package models

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// All 返回全部模型，顺序即建表顺序（被引用的表在前）
func All() []interface{} {
	return []interface{}{
		&Lead{},
		&Template{},
		&Research{},
		&Draft{},
		&Email{},
		&WebhookEvent{},
	}
}

// AutoMigrate 创建缺失的表与索引，表已存在时不做破坏性修改，可重复执行
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
