// Package memory keeps exported reports in process; used when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"casa/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	reports map[string]sheets.MonthReport
	order   []string
}

var _ sheets.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{reports: make(map[string]sheets.MonthReport)}
}

// WriteMonthReport replaces nothing: the first write of a key wins.
func (s *Store) WriteMonthReport(_ context.Context, r sheets.MonthReport) (string, error) {
	key := r.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[key]; !ok {
		s.reports[key] = r
		s.order = append(s.order, key)
	}
	return fmt.Sprintf("mem:%s", key), nil
}

// Reports returns stored reports in write order.
func (s *Store) Reports() []sheets.MonthReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.MonthReport, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.reports[k])
	}
	return out
}

// Keys returns the stored report keys sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := append([]string(nil), s.order...)
	sort.Strings(keys)
	return keys
}
