// Package shard provides shard key generation for the children index table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// ChildIndexPK computes the sharded partition key for a child index record.
// With numShards=1, all children of a parent go to shard "00".
// With numShards>1, records are distributed across shards based on childKey hash.
func ChildIndexPK(treeID, parentKey, childKey string, numShards int) string {
	if numShards <= 1 {
		return IndexShardPK(treeID, parentKey, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childKey))
	return IndexShardPK(treeID, parentKey, int(h.Sum32()%uint32(numShards)))
}

// IndexShardPK computes the partition key of one shard of a parent's
// child index, for fan-out reads across all shards.
func IndexShardPK(treeID, parentKey string, shardNum int) string {
	return fmt.Sprintf("%s#%s#%02x", treeID, parentKey, shardNum)
}
