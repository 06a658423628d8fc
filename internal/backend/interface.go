// Package backend builds the pluggable infrastructure the binaries share:
// where closed-month reports are written and how domain events travel.
package backend

import (
	"context"

	"casa/internal/amqp"
	"casa/internal/sheets"
)

// CleanupFunc releases resources held by a created component.
type CleanupFunc func() error

// ReportResult contains the report writer and an optional cleanup function.
type ReportResult struct {
	Writer  sheets.ReportWriter
	Cleanup CleanupFunc
}

// Factory creates infrastructure components based on configuration.
type Factory interface {
	CreateReportWriter(ctx context.Context, config Config) (*ReportResult, error)
	// CreateEventClient returns nil when no broker is configured.
	CreateEventClient(config Config, consumer bool) (*amqp.Client, error)
}

// ReportBackend selects where closed months are exported.
type ReportBackend string

const (
	MemoryReports ReportBackend = "memory"
	SheetsReports ReportBackend = "sheets"
)

func (rb ReportBackend) String() string {
	return string(rb)
}

func (rb ReportBackend) IsValid() bool {
	switch rb {
	case MemoryReports, SheetsReports:
		return true
	default:
		return false
	}
}
