package enums

import "fmt"

// AllocationStatus tracks one member's share of a collective order.
type AllocationStatus string

const (
	AllocationPending   AllocationStatus = "pending"
	AllocationConfirmed AllocationStatus = "confirmed"
	AllocationDelivered AllocationStatus = "delivered"
	// AllocationCancelled marks confirmed allocations of a cancelled order;
	// pending ones are deleted instead.
	AllocationCancelled AllocationStatus = "cancelled"
)

var validAllocationStatuses = []AllocationStatus{
	AllocationPending,
	AllocationConfirmed,
	AllocationDelivered,
	AllocationCancelled,
}

func (s AllocationStatus) String() string {
	return string(s)
}

func (s AllocationStatus) IsValid() bool {
	for _, candidate := range validAllocationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseAllocationStatus(value string) (AllocationStatus, error) {
	for _, candidate := range validAllocationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid allocation status %q", value)
}
