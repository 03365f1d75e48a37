// Package api exposes the node clock and its store over HTTP.
//
// Routes:
//
//	GET    /timestamp          current timestamp (wall clock resync)
//	POST   /timestamp          record a local event
//	POST   /timestamp/{value}  merge a remote timestamp ("phys.logical" or packed)
//	GET    /kv                 list live keys
//	GET    /kv/{key}           read a key; ?read=all also asks every peer
//	PUT    /kv/{key}           write the request body; ?ttl=30s sets an expiry
//	DELETE /kv/{key}           write a tombstone
//	GET    /peers              gossip state of every peer
//	GET    /metrics            prometheus metrics
package api
