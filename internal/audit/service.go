package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 10000
)

// Service mengoordinasikan pengambilan data audit untuk pelaporan.
type Service struct {
	repo Repository
}

// NewService membuat service audit baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List mengambil event audit terbaru lebih dulu, dengan paging.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.List(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []EventView{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// History mengembalikan riwayat lengkap satu entitas.
func (s *Service) History(ctx context.Context, table string, recordID int64) ([]EventView, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	table = strings.TrimSpace(table)
	if table == "" || recordID <= 0 {
		return []EventView{}, nil
	}
	rows, err := s.repo.History(ctx, table, recordID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []EventView{}
	}
	return rows, nil
}

// Export mengambil seluruh data sesuai filter tanpa paging, dibatasi maxExportRows.
func (s *Service) Export(ctx context.Context, filters Filters) ([]EventView, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.List(ctx, filters, maxExportRows, 0)
}
