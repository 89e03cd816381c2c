// Package bridge serves the engine to host processes over a framed
// request/response protocol. Each connection owns the sessions it creates;
// they are closed when the connection ends.
package bridge
