package models

// HTTP request models for the read-only API.

type SnapshotRequest struct {
	Symbol string `param:"symbol" validate:"required,min=1,max=32"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" validate:"required,min=1,max=32"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type AlertsRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,min=1,max=32"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}
