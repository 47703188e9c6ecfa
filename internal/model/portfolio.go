package model

import "time"

// Holding is one scraped portfolio position
type Holding struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avgPrice,omitempty"`
	Price        float64 `json:"price"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight,omitempty"` // percent of total value
	DayChangePct float64 `json:"dayChangePct,omitempty"`
}

// PortfolioSnapshot is the daily snapshot pushed downstream
type PortfolioSnapshot struct {
	Date         string    `json:"date"` // YYYY-MM-DD
	Holdings     []Holding `json:"holdings"`
	TotalValue   float64   `json:"totalValue"`
	DayChangePct float64   `json:"dayChangePct,omitempty"`
	Commentary   string    `json:"commentary,omitempty"`
	CapturedAt   time.Time `json:"capturedAt"`
}
