// Package store holds received log records in memory, bounded by a TTL and
// a capacity. The oldest record is dropped when the store is full.
package store
