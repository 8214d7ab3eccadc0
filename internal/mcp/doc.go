// Package mcp is the request router in front of the warehouse. It speaks
// JSON-RPC 2.0 as used by the Model Context Protocol: newline-delimited
// messages on stdio, or one message per HTTP request through the api
// package.
//
// Four methods carry the warehouse: resources/list, resources/read,
// tools/list and tools/call. The only tool is "query", and every query
// passes the same pipeline before it reaches the gateway:
//
//  1. sqlguard.Classify rejects any text containing a mutating keyword.
//  2. References to INFORMATION_SCHEMA.TABLES are pinned to the
//     configured catalog; an unqualified reference is refused.
//  3. The rewritten text runs on the gateway with a byte cap.
//
// Failures in steps 1 and 2 are protocol errors. A failure in step 3 is
// reported as tool output with isError set, so the agent can read the
// warehouse's message and correct its query.
//
// Each request is answered independently. The router holds no
// per-session state and does not require initialize before other
// methods.
package mcp
