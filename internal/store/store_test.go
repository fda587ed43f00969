package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"exohunter/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertLaptops_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []model.Laptop{
		{Slug: "laptop-a", Name: "Laptop A", URL: "https://exo.ir/product/laptop-a"},
		{Slug: "laptop-b", Name: "Laptop B", URL: "https://exo.ir/product/laptop-b"},
	}

	inserted, err := s.InsertLaptops(ctx, batch)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted != 2 {
		t.Errorf("expected 2 inserted, got %d", inserted)
	}

	// 重复发现同一批商品：静默跳过，不报错，不产生重复
	again := []model.Laptop{
		{Slug: "laptop-a", Name: "Laptop A", URL: "https://exo.ir/product/laptop-a"},
		{Slug: "laptop-c", Name: "Laptop C", URL: "https://exo.ir/product/laptop-c"},
	}
	inserted, err = s.InsertLaptops(ctx, again)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if inserted != 1 {
		t.Errorf("expected 1 newly inserted, got %d", inserted)
	}

	counts, err := s.CountLaptops(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Total != 3 {
		t.Errorf("expected 3 total, got %d", counts.Total)
	}
}

func TestPendingLaptops_And_SaveDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertLaptops(ctx, []model.Laptop{
		{Slug: "laptop-a", Name: "Laptop A", URL: "https://exo.ir/product/laptop-a"},
		{Slug: "laptop-b", Name: "Laptop B", URL: "https://exo.ir/product/laptop-b"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := s.PendingLaptops(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	// 写入详情：记录落库 + 状态翻转在同一事务里
	price := int64(99000000)
	detail := &model.LaptopDetail{
		LaptopID: pending[0].ID,
		Slug:     pending[0].Slug,
		Title:    "Laptop A Titled",
		Price:    &price,
	}
	if err := s.SaveDetail(ctx, detail); err != nil {
		t.Fatalf("save detail: %v", err)
	}

	pending, err = s.PendingLaptops(ctx)
	if err != nil {
		t.Fatalf("pending after save: %v", err)
	}
	if len(pending) != 1 || pending[0].Slug != "laptop-b" {
		t.Errorf("expected only laptop-b pending, got %+v", pending)
	}

	counts, _ := s.CountLaptops(ctx)
	if counts.Done != 1 || counts.Pending != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestSaveDetail_UpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertLaptops(ctx, []model.Laptop{
		{Slug: "laptop-a", Name: "Laptop A", URL: "https://exo.ir/product/laptop-a"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	pending, _ := s.PendingLaptops(ctx)
	laptopID := pending[0].ID

	// 同一条目的重试写入：覆盖而不是新增
	first := &model.LaptopDetail{LaptopID: laptopID, Slug: "laptop-a", Title: "First Attempt"}
	if err := s.SaveDetail(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := &model.LaptopDetail{LaptopID: laptopID, Slug: "laptop-a", Title: "Second Attempt"}
	if err := s.SaveDetail(ctx, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var count int64
	if err := s.DB().Model(&model.LaptopDetail{}).Where("laptop_id = ?", laptopID).Count(&count).Error; err != nil {
		t.Fatalf("count details: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 detail row, got %d", count)
	}

	_, detail, err := s.LaptopBySlug(ctx, "laptop-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if detail == nil || detail.Title != "Second Attempt" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestLaptopBySlug_PendingHasNoDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.InsertLaptops(ctx, []model.Laptop{
		{Slug: "laptop-a", Name: "Laptop A", URL: "https://exo.ir/product/laptop-a"},
	})

	laptop, detail, err := s.LaptopBySlug(ctx, "laptop-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if laptop == nil || laptop.ScrapedDetails {
		t.Errorf("laptop = %+v", laptop)
	}
	if detail != nil {
		t.Errorf("expected nil detail for pending entry, got %+v", detail)
	}
}
