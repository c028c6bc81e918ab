package enums

import "fmt"

// FeeStatus tracks the collection of a group order's facilitation fee.
type FeeStatus string

const (
	FeePending  FeeStatus = "pending"
	FeeInvoiced FeeStatus = "invoiced"
	FeePaid     FeeStatus = "paid"
)

var validFeeStatuses = []FeeStatus{FeePending, FeeInvoiced, FeePaid}

func (s FeeStatus) String() string {
	return string(s)
}

func (s FeeStatus) IsValid() bool {
	for _, candidate := range validFeeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseFeeStatus(value string) (FeeStatus, error) {
	for _, candidate := range validFeeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee status %q", value)
}
