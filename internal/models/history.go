package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind tags which field of an AuditValue is populated
type ValueKind string

const (
	ValueKindNone     ValueKind = "none"
	ValueKindStage    ValueKind = "stage"
	ValueKindBool     ValueKind = "bool"
	ValueKindString   ValueKind = "string"
	ValueKindSnapshot ValueKind = "snapshot"
)

// AuditValue is the before or after value of a history entry. Exactly one
// payload field matches Kind.
type AuditValue struct {
	Kind     ValueKind       `json:"kind"`
	Stage    OrderStatus     `json:"stage,omitempty"`
	Bool     *bool           `json:"bool,omitempty"`
	Text     string          `json:"text,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// NoValue is used where an entry has no before or after side
func NoValue() AuditValue {
	return AuditValue{Kind: ValueKindNone}
}

// StageValue wraps a stage
func StageValue(s OrderStatus) AuditValue {
	return AuditValue{Kind: ValueKindStage, Stage: s}
}

// BoolValue wraps a flag
func BoolValue(b bool) AuditValue {
	return AuditValue{Kind: ValueKindBool, Bool: &b}
}

// StringValue wraps free text
func StringValue(s string) AuditValue {
	return AuditValue{Kind: ValueKindString, Text: s}
}

// SnapshotValue captures v (a sub-record or line item list) as JSON.
// Model types always marshal; anything else degrades to its string form.
func SnapshotValue(v interface{}) AuditValue {
	raw, err := json.Marshal(v)

	if err != nil {
		return StringValue(fmt.Sprintf("%v", v))
	}

	return AuditValue{Kind: ValueKindSnapshot, Snapshot: raw}
}

// DecodeSnapshot unmarshals a snapshot value into dst
func (v AuditValue) DecodeSnapshot(dst interface{}) error {
	if v.Kind != ValueKindSnapshot {
		return fmt.Errorf("audit value is %s, not a snapshot", v.Kind)
	}
	return json.Unmarshal(v.Snapshot, dst)
}

// String renders the value for logs
func (v AuditValue) String() string {
	switch v.Kind {
	case ValueKindStage:
		return string(v.Stage)
	case ValueKindBool:
		if v.Bool == nil {
			return "false"
		}
		return fmt.Sprintf("%t", *v.Bool)
	case ValueKindString:
		return v.Text
	case ValueKindSnapshot:
		return string(v.Snapshot)
	default:
		return ""
	}
}

// StatusChangeLog is one immutable audit entry on an order
type StatusChangeLog struct {
	Timestamp     time.Time  `json:"timestamp"`
	UserID        string     `json:"userId"`
	UserName      string     `json:"userName"`
	Action        string     `json:"action"`
	PreviousValue AuditValue `json:"previousValue"`
	NewValue      AuditValue `json:"newValue"`
	Notes         string     `json:"notes,omitempty"`
}

// History actions written by the workflow engine
const (
	ActionOrderCreated       = "Order created"
	ActionStatusChanged      = "Status changed"
	ActionLineItemsUpdated   = "Line items updated"
	ActionDeadOpportunity    = "Moved to dead opportunity"
	ActionCreatedFromDead    = "Lead created from dead opportunity"
	ActionOrderReopened      = "Order reopened"
	ActionArchived           = "Archived"
	ActionUnarchived         = "Unarchived"
	ActionLeadInfoUpdated    = "Lead info updated"
	ActionContactUpdated     = "Contact updated"
	ActionCustomerApproval   = "Customer approval"
	ActionArtUpdated         = "Art confirmation updated"
	ActionArtBypassed        = "Art confirmation bypassed"
	ActionPrepUpdated        = "Prep status updated"
	ActionLineItemProgress   = "Line item progress"
	ActionFulfillmentUpdated = "Fulfillment updated"
	ActionInvoiceUpdated     = "Invoice status updated"
	ActionCloseoutUpdated    = "Closeout checklist updated"
)
