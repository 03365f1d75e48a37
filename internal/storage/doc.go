// Package storage provides the local key-value storage interface and
// in-memory implementation. Every value carries the hybrid logical
// timestamp of the write that produced it, and replicated writes are
// resolved last-writer-wins by timestamp order.
package storage
