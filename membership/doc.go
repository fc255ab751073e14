// Package membership implements the announce protocol by which nodes learn
// about each other.
//
// A node exposes Service over gRPC as infermesh.v1.Membership/Announce. On
// startup a Bootstrapper announces the node to its seeds in order and merges
// the first answer into the local peer registry; a node whose seeds are all
// unreachable runs standalone, and a Rejoiner keeps retrying in the
// background with bounded backoff until the node is no longer alone.
//
// Membership is best effort: there is no consensus, and different nodes may
// hold different views of the mesh at any time.
package membership
