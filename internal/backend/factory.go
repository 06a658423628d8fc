package backend

import (
	"context"
	"fmt"
	"log/slog"

	"casa/internal/amqp"
	gsheet "casa/internal/sheets/google"
	"casa/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateReportWriter(ctx context.Context, config Config) (*ReportResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Reports {
	case SheetsReports:
		cli, err := gsheet.New(ctx, config.Sheets)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets report writer", "spreadsheet_id", config.Sheets.SpreadsheetID)
		return &ReportResult{Writer: cli}, nil
	case MemoryReports:
		f.logger.Warn("Reports are kept in memory and lost on restart")
		return &ReportResult{Writer: memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported report backend: %s", config.Reports)
	}
}

// CreateEventClient dials the broker. Consumers declare and bind the report queue;
// publishers only need the exchange.
func (f *DefaultFactory) CreateEventClient(config Config, consumer bool) (*amqp.Client, error) {
	if !config.EventsEnabled() {
		f.logger.Info("AMQP not configured, domain events disabled")
		return nil, nil
	}

	queue := ""
	if consumer {
		queue = config.AMQPQueue
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", queue)
	return client, nil
}
