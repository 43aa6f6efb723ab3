package services

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// AccountNumberWidth is the fixed display width of account numbers.
const AccountNumberWidth = 19

type NumberGenerator interface {
	Next() string
}

// SnowflakeNumbers issues account numbers from a snowflake node. Numbers are
// unique per node id; the store still rejects collisions across nodes.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNumbers{node: node}, nil
}

func (g *SnowflakeNumbers) Next() string {
	return fmt.Sprintf("%0*d", AccountNumberWidth, g.node.Generate().Int64())
}
