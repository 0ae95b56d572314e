package models

// BillInfo is the structured data the extraction service pulls out of a bill
// image or PDF. All fields are optional; whatever the OCR recognized is set.
type BillInfo struct {
	CIL             string             `json:"cil,omitempty"`
	CustomerName    string             `json:"customer_name,omitempty"`
	Amount          float64            `json:"amount,omitempty"`
	DueDate         string             `json:"due_date,omitempty"`
	BillDate        string             `json:"bill_date,omitempty"`
	ServiceType     string             `json:"service_type,omitempty"`
	PreviousBalance float64            `json:"previous_balance,omitempty"`
	Consumption     float64            `json:"consumption,omitempty"`
	Breakdown       map[string]float64 `json:"breakdown,omitempty"`
	RawText         string             `json:"raw_text,omitempty"`
}

// OCRResult is the extraction endpoint response envelope. A response with
// Success == false is treated the same as a transport failure.
type OCRResult struct {
	Success bool      `json:"success"`
	Data    *BillInfo `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}
