// Package keylock serialises work on a single (group, product, month)
// aggregation key across goroutines and, with Redis, across processes.
package keylock

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Unlock releases a held key.
type Unlock func() error

// Locker grants exclusive ownership of a key until Unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Key builds the aggregation key for a group/product/month triple. Product
// names are case-folded so "Insulina NPH" and "insulina nph" contend.
func Key(groupID uuid.UUID, productName, targetMonth string) string {
	product := strings.ToLower(strings.TrimSpace(productName))
	return fmt.Sprintf("gpo:%s:%s:%s", groupID, product, targetMonth)
}
