package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the process-wide Snowflake node. The worker and the server use
// different node IDs so run IDs never collide.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns a time-ordered, globally unique ID.
func New() int64 {
	return node.Generate().Int64()
}

// NewString is New rendered in base 10, for places that key on strings
// (stream fields, file names).
func NewString() string {
	return strconv.FormatInt(New(), 10)
}
