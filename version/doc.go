// Package version reports the build of the running node or client.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/infermesh/version.Version=0.3.0 \
//	  -X github.com/kbukum/infermesh/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/meshnode
//
// Unset fields fall back to the VCS stamp the Go toolchain embeds.
package version
