package backend

import (
	"errors"
	"fmt"

	"casa/internal/config"
	gsheet "casa/internal/sheets/google"
)

// Config holds configuration for component creation
type Config struct {
	Reports ReportBackend
	Sheets  gsheet.Config

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	reports := ReportBackend(appConfig.ReportBackend)
	if !reports.IsValid() {
		return Config{}, fmt.Errorf("invalid report backend in config: %s", appConfig.ReportBackend)
	}

	return Config{
		Reports: reports,
		Sheets: gsheet.Config{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			SheetName:       appConfig.GoogleSheetName,
			CredentialsJSON: appConfig.GoogleServiceAccountJSON,
			CredentialsFile: appConfig.GoogleServiceAccountFile,
		},
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Reports.IsValid() {
		return fmt.Errorf("invalid report backend: %s", c.Reports)
	}
	if c.Reports == SheetsReports {
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets reports")
		}
		if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
			return errors.New("service account credentials are required for sheets reports")
		}
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return errors.New("AMQP exchange is required when AMQP URL is set")
	}
	return nil
}

// EventsEnabled reports whether a broker is configured.
func (c Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}
