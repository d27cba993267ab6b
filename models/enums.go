package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// CostChangeReason tags a cost history row with where the change came from.
type CostChangeReason string

const (
	CostChangeReasonManual          CostChangeReason = "Manual"
	CostChangeReasonDocumentDerived CostChangeReason = "DocumentDerived"
)

func (r CostChangeReason) Value() (driver.Value, error) {
	return string(r), nil
}

func (r *CostChangeReason) Scan(value interface{}) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	switch CostChangeReason(s) {
	case CostChangeReasonManual, CostChangeReasonDocumentDerived:
		*r = CostChangeReason(s)
		return nil
	}
	return fmt.Errorf("invalid cost change reason: %q", s)
}

// MatchStrategy records which fallback strategy resolved an invoice item.
type MatchStrategy string

const (
	MatchStrategyNone        MatchStrategy = "None"
	MatchStrategyExact       MatchStrategy = "Exact"
	MatchStrategyContainment MatchStrategy = "Containment"
	MatchStrategyKeyword     MatchStrategy = "Keyword"
)

func (m MatchStrategy) Value() (driver.Value, error) {
	return string(m), nil
}

func (m *MatchStrategy) Scan(value interface{}) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	switch MatchStrategy(s) {
	case MatchStrategyNone, MatchStrategyExact, MatchStrategyContainment, MatchStrategyKeyword:
		*m = MatchStrategy(s)
		return nil
	}
	return fmt.Errorf("invalid match strategy: %q", s)
}

// InvoiceStatus tracks how far an extracted supplier invoice has been taken.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "Pending"
	InvoiceStatusReviewed  InvoiceStatus = "Reviewed"
	InvoiceStatusConfirmed InvoiceStatus = "Confirmed"
)

func (s InvoiceStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *InvoiceStatus) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return err
	}
	switch InvoiceStatus(str) {
	case InvoiceStatusPending, InvoiceStatusReviewed, InvoiceStatusConfirmed:
		*s = InvoiceStatus(str)
		return nil
	}
	return fmt.Errorf("invalid invoice status: %q", str)
}

// RecalcStatus is the lifecycle of a queued recalculation task.
type RecalcStatus string

const (
	RecalcStatusPending RecalcStatus = "Pending"
	RecalcStatusDone    RecalcStatus = "Done"
)

func (s RecalcStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *RecalcStatus) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return err
	}
	switch RecalcStatus(str) {
	case RecalcStatusPending, RecalcStatusDone:
		*s = RecalcStatus(str)
		return nil
	}
	return fmt.Errorf("invalid recalc status: %q", str)
}

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", errors.New("enum value must be a string")
}
