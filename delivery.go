package reportq

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for task payload serialization.
type Encoder interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// JSONEncoder encodes with the standard library and decodes with sonic.
type JSONEncoder struct{}

func (*JSONEncoder) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (*JSONEncoder) Decode(data []byte, v any) error { return sonic.Unmarshal(data, v) }

// Task types routed by the delivery Mux.
const (
	// TypeClientReport delivers a per-client weekly report to the client.
	TypeClientReport = "report:client"
	// TypeCombinedReport delivers the combined report of all tasks to admins.
	TypeCombinedReport = "report:combined"
	// TypeSummary delivers every per-client document of a run to admins in one message.
	TypeSummary = "report:summary"
)

// Attachment is a file carried by a delivery. Data holds the rendered bytes so
// every retry sends exactly the same document.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Delivery is the payload of a delivery task: one message to one or more recipients.
type Delivery struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks the fields a transport cannot do without.
func (d *Delivery) Validate() error {
	if len(d.To) == 0 {
		return ErrNoRecipients
	}
	for i, to := range d.To {
		if to == "" {
			return fmt.Errorf("reportq: recipient %d is empty", i)
		}
	}
	return nil
}

// DecodeDelivery decodes a delivery payload. A payload that cannot be decoded
// will never succeed, so the error wraps ErrSkipRetry.
func DecodeDelivery(payload []byte) (*Delivery, error) {
	var d Delivery
	if err := (&JSONEncoder{}).Decode(payload, &d); err != nil {
		return nil, fmt.Errorf("decode delivery: %v: %w", err, ErrSkipRetry)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delivery: %v: %w", err, ErrSkipRetry)
	}
	return &d, nil
}
