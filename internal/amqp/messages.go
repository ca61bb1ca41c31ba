package amqp

import (
	"encoding/json"
	"time"

	"valuta/internal/core"
)

// RatesUpdatedMessage announces that a new rate table was applied. It carries
// no rates; consumers query the HTTP API for them.
type RatesUpdatedMessage struct {
	BaseCode    string    `json:"base_code"`
	RateCount   int       `json:"rate_count"`
	FetchedAt   time.Time `json:"fetched_at"`
	PublishedAt time.Time `json:"published_at"`
}

func NewRatesUpdatedMessage(table *core.RateTable, now time.Time) *RatesUpdatedMessage {
	return &RatesUpdatedMessage{
		BaseCode:    table.BaseCode,
		RateCount:   len(table.Rates),
		FetchedAt:   table.FetchedAt,
		PublishedAt: now,
	}
}

func (m *RatesUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RatesUpdatedMessageFromJSON(data []byte) (*RatesUpdatedMessage, error) {
	var msg RatesUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
