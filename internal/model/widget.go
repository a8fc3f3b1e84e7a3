package model

import (
	"encoding/json"
	"time"
)

type WidgetRequestKind string

const (
	WidgetRequestMessage  WidgetRequestKind = "message"
	WidgetRequestSearch   WidgetRequestKind = "search"
	WidgetRequestCheckout WidgetRequestKind = "checkout"
)

// WidgetRequest is a validated storefront request handed to the downstream
// conversation and commerce pipeline.
type WidgetRequest struct {
	ID         string            `json:"id"`
	Kind       WidgetRequestKind `json:"kind"`
	SessionID  string            `json:"sessionId"`
	MerchantID string            `json:"merchantId"`
	Payload    json.RawMessage   `json:"payload"`
	ReceivedAt time.Time         `json:"receivedAt"`
}
