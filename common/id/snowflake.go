package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// epoch is 2024-01-01T00:00:00Z in milliseconds. Run ids only need to order
// within this system, so a recent epoch keeps them short.
const epoch int64 = 1704067200000

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init binds the process to a snowflake node. Connector replicas sharing a
// cursor backend must use distinct node ids (0..1023). Later calls are ignored.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()
	if node != nil {
		return nil
	}
	snowflake.Epoch = epoch
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	node = n
	return nil
}

func current() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		panic("id: Init must be called before generating ids")
	}
	return node
}

// NewRunID returns a time-ordered identifier for one sync cycle, base58
// encoded for logs and summaries.
func NewRunID() string {
	return current().Generate().Base58()
}

// RunTime recovers the time a run id was generated.
func RunTime(runID string) (time.Time, error) {
	sf, err := snowflake.ParseBase58([]byte(runID))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	return time.UnixMilli(sf.Time()).UTC(), nil
}
