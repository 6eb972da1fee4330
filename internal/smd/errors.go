package smd

import (
	"fmt"

	"github.com/dreamware/smd/internal/backend"
)

func errUnassignedShard(shardID int) error {
	return fmt.Errorf("%w: smd: no address assigned for shard %d", backend.ErrProtocol, shardID)
}
