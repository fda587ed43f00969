// Package store 提供基于 SQLite 的持久化存储。
//
// 它是整个流水线里唯一共享的可变资源：目录条目按 slug 幂等插入，
// 详情记录按父条目 ID upsert，每次写入自成一个事务、立即可见，
// 中断进程不会丢失任何已完成的工作。
package store

import (
	"context"
	"fmt"
	"log/slog"

	"exohunter/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// Store 封装数据库连接与流水线需要的全部存储操作。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open 打开（或创建）SQLite 数据库并执行自动迁移。
//
// WAL 模式让单写多读并行；busy_timeout 让来自不同 worker 的并发写
// 在存储层排队而不是直接报锁冲突。
//
// 参数:
//
//	path: 数据库文件路径
//	logger: 日志记录器
//
// 返回值:
//
//	*Store: 初始化完成的存储实例
//	error: 打开或迁移失败返回错误
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭 GORM 调试日志
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&model.Laptop{}, &model.LaptopDetail{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB 暴露底层连接（只读查询方使用）。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InsertLaptops 批量写入目录条目，slug 冲突时静默跳过。
//
// 跨运行重复发现同一商品是正常现象，不是错误。
//
// 返回值:
//
//	int: 本次实际新插入的条目数
//	error: 写入失败返回错误
func (s *Store) InsertLaptops(ctx context.Context, laptops []model.Laptop) (int, error) {
	if len(laptops) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&laptops)
	if result.Error != nil {
		return 0, fmt.Errorf("insert laptops: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// PendingLaptops 返回所有尚未抓取详情的目录条目（按发现顺序）。
func (s *Store) PendingLaptops(ctx context.Context) ([]model.Laptop, error) {
	var laptops []model.Laptop
	err := s.db.WithContext(ctx).
		Where("scraped_details = ?", false).
		Order("id").
		Find(&laptops).Error
	if err != nil {
		return nil, fmt.Errorf("query pending laptops: %w", err)
	}
	return laptops, nil
}

// SaveDetail 在同一事务中 upsert 详情记录并把父条目翻转为 Done。
//
// 状态翻转只会与一次成功的详情写入成对出现：
// 事务中途崩溃不会留下"已 Done 却没有详情"的条目。
// 按 LaptopID 冲突时整行覆盖，同一条目的重试写入是幂等的。
func (s *Store) SaveDetail(ctx context.Context, detail *model.LaptopDetail) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "laptop_id"}},
			UpdateAll: true,
		}).Create(detail).Error; err != nil {
			return err
		}

		return tx.Model(&model.Laptop{}).
			Where("id = ?", detail.LaptopID).
			Update("scraped_details", true).Error
	})
	if err != nil {
		return fmt.Errorf("save detail for laptop %d: %w", detail.LaptopID, err)
	}
	return nil
}

// Counts 流水线状态统计。
type Counts struct {
	Total   int64 // 目录条目总数
	Done    int64 // 已完成详情抓取数
	Pending int64 // 待抓取数
}

// CountLaptops 返回目录条目的总数 / 已完成数 / 待抓取数。
func (s *Store) CountLaptops(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.WithContext(ctx).Model(&model.Laptop{}).Count(&c.Total).Error; err != nil {
		return c, fmt.Errorf("count laptops: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.Laptop{}).
		Where("scraped_details = ?", true).Count(&c.Done).Error; err != nil {
		return c, fmt.Errorf("count done laptops: %w", err)
	}
	c.Pending = c.Total - c.Done
	return c, nil
}

// Laptops 返回目录条目列表，doneOnly 为 true 时只返回已完成的。
func (s *Store) Laptops(ctx context.Context, doneOnly bool) ([]model.Laptop, error) {
	var laptops []model.Laptop
	q := s.db.WithContext(ctx).Order("id")
	if doneOnly {
		q = q.Where("scraped_details = ?", true)
	}
	if err := q.Find(&laptops).Error; err != nil {
		return nil, fmt.Errorf("query laptops: %w", err)
	}
	return laptops, nil
}

// LaptopBySlug 返回单个目录条目及其详情记录（如果已完成）。
func (s *Store) LaptopBySlug(ctx context.Context, slug string) (*model.Laptop, *model.LaptopDetail, error) {
	var laptop model.Laptop
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&laptop).Error; err != nil {
		return nil, nil, err
	}

	if !laptop.ScrapedDetails {
		return &laptop, nil, nil
	}

	var detail model.LaptopDetail
	if err := s.db.WithContext(ctx).Where("laptop_id = ?", laptop.ID).First(&detail).Error; err != nil {
		return &laptop, nil, err
	}
	return &laptop, &detail, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
