// Package transport carries hybrid logical timestamps and replicated writes
// between nodes over gRPC. The service is described by hand on top of the
// protobuf well-known types, so no generated code is needed: timestamps
// travel as UInt64Value in the packed layout, writes as a Struct.
package transport
