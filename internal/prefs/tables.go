package prefs

import (
	"context"
	"sync"

	"reuse-console/internal/logging"
	"reuse-console/internal/store"
)

const DefaultPageSize = 10

type SortColumn struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

type ColumnFilter struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

type Pagination struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
}

// TableState is the saved view of one table, keyed by its namespace.
type TableState struct {
	ColumnVisibility map[string]bool `json:"columnVisibility"`
	Sorting          []SortColumn    `json:"sorting"`
	ColumnFilters    []ColumnFilter  `json:"columnFilters"`
	Pagination       Pagination      `json:"pagination"`
}

func DefaultTable() TableState {
	return TableState{
		ColumnVisibility: map[string]bool{},
		Sorting:          []SortColumn{},
		ColumnFilters:    []ColumnFilter{},
		Pagination:       Pagination{PageSize: DefaultPageSize},
	}
}

type tablesState struct {
	Tables map[string]TableState `json:"tables"`
}

// Tables is the table-storage store.
type Tables struct {
	storage store.Storage

	mu     sync.Mutex
	tables map[string]TableState
}

func NewTables(storage store.Storage) *Tables {
	return &Tables{storage: storage, tables: make(map[string]TableState)}
}

func (t *Tables) Load(ctx context.Context) error {
	var st tablesState
	if err := load(ctx, t.storage, store.TableKey, &st); err != nil {
		logging.Logg.Warn("Table preferences unreadable, using defaults", "error", err)
		st = tablesState{}
	}
	if st.Tables == nil {
		st.Tables = make(map[string]TableState)
	}
	t.mu.Lock()
	t.tables = st.Tables
	t.mu.Unlock()
	return nil
}

// Get returns the saved state of a namespace or the default state.
func (t *Tables) Get(namespace string) TableState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.tables[namespace]; ok {
		return s
	}
	return DefaultTable()
}

func (t *Tables) SetColumnVisibility(ctx context.Context, namespace string, v map[string]bool) error {
	return t.update(ctx, namespace, func(s *TableState) { s.ColumnVisibility = v })
}

func (t *Tables) SetSorting(ctx context.Context, namespace string, sorting []SortColumn) error {
	return t.update(ctx, namespace, func(s *TableState) { s.Sorting = sorting })
}

func (t *Tables) SetColumnFilters(ctx context.Context, namespace string, filters []ColumnFilter) error {
	return t.update(ctx, namespace, func(s *TableState) { s.ColumnFilters = filters })
}

func (t *Tables) SetPagination(ctx context.Context, namespace string, p Pagination) error {
	return t.update(ctx, namespace, func(s *TableState) { s.Pagination = p })
}

func (t *Tables) update(ctx context.Context, namespace string, fn func(*TableState)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.tables[namespace]
	if !ok {
		s = DefaultTable()
	}
	fn(&s)
	t.tables[namespace] = s
	return store.SaveJSON(ctx, t.storage, store.TableKey, tablesState{Tables: t.tables})
}
