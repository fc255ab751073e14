// Package component defines the lifecycle contract shared by everything a
// mesh node starts: servers, background loops and infrastructure clients.
//
// A Registry starts components in registration order and stops them in
// reverse. Background wraps a long-running loop as a Component whose Stop
// cancels the loop and waits for it to return.
package component
