package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types double as routing keys on the topic exchange.
const (
	EventMonthClosed        = "month.closed"
	EventMonthReopened      = "month.reopened"
	EventSavingsDistributed = "savings.distributed"
)

// Event is a lightweight notification; consumers load current state from the database.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	HouseholdID int64     `json:"householdId"`
	BudgetID    int64     `json:"budgetId,omitempty"`
	Year        int       `json:"year,omitempty"`
	Month       int       `json:"month,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent stamps a new event with a random id.
func NewEvent(eventType string, householdID int64) *Event {
	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		HouseholdID: householdID,
		Timestamp:   time.Now().UTC(),
	}
}

// ForPeriod attaches the budget the event refers to.
func (e *Event) ForPeriod(budgetID int64, year, month int) *Event {
	e.BudgetID, e.Year, e.Month = budgetID, year, month
	return e
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
