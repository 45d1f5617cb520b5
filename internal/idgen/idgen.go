// Package idgen allocates human-readable identifiers that stay unique without relying
// on the wall clock alone.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Allocator hands out snowflake ids: timestamp, node and a per-millisecond sequence,
// so two calls in the same instant still differ.
type Allocator struct {
	node *snowflake.Node
}

// NewAllocator creates an allocator for node (0-1023). Every running instance needs its own node.
func NewAllocator(node int64) (*Allocator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Allocator{node: n}, nil
}

func (a *Allocator) Next() string {
	return a.node.Generate().String()
}

// PaymentInvoiceID names one payment on a transporter transaction, e.g. TXN-42-1790365520863416320.
func (a *Allocator) PaymentInvoiceID(transactionID uint) string {
	return fmt.Sprintf("TXN-%d-%s", transactionID, a.Next())
}
