//go:build integration

package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TestPassword satisfies the provisioning password rules
const TestPassword = "Expediente-2024"

var accountSeq atomic.Int64

// TestUsername generates a unique username within the 50 character limit
func TestUsername(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().Unix()%100000, accountSeq.Add(1))
}
