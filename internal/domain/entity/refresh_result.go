package entity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RefreshStatus tags the outcome of a refresh.
type RefreshStatus int

const (
	RefreshOK RefreshStatus = iota + 1
	// RefreshDegraded means the snapshot was produced but a best-effort input
	// was unavailable. Warning says which.
	RefreshDegraded
	RefreshFailed
)

func (s RefreshStatus) String() string {
	switch s {
	case RefreshOK:
		return "ok"
	case RefreshDegraded:
		return "degraded"
	case RefreshFailed:
		return "failed"
	default:
		return fmt.Sprintf("RefreshStatus(%d)", int(s))
	}
}

// RefreshResult is what a refresh hands to the snapshot sink. Exactly one of
// Pool and User is set unless Status is RefreshFailed, in which case Err is set
// and neither snapshot is.
type RefreshResult struct {
	Status  RefreshStatus
	Path    string
	Pool    *PoolSnapshot
	User    *UserSnapshot
	Warning error
	Err     error
}

// PoolPath is the sink path of an asset's pool snapshot.
func PoolPath(asset common.Address) string {
	return "pool/" + asset.Hex()
}

// UserPath is the sink path of a depositor's snapshot.
func UserPath(user, asset common.Address) string {
	return "user/" + user.Hex() + "/" + asset.Hex()
}

// PoolResult wraps a pool snapshot, degraded when warning is non-nil.
func PoolResult(snapshot *PoolSnapshot, warning error) RefreshResult {
	return RefreshResult{
		Status:  statusFor(warning),
		Path:    PoolPath(snapshot.Asset),
		Pool:    snapshot,
		Warning: warning,
	}
}

// UserResult wraps a user snapshot, degraded when warning is non-nil.
func UserResult(snapshot *UserSnapshot, warning error) RefreshResult {
	return RefreshResult{
		Status:  statusFor(warning),
		Path:    UserPath(snapshot.User, snapshot.Asset),
		User:    snapshot,
		Warning: warning,
	}
}

// FailedResult reports a refresh that produced no snapshot.
func FailedResult(path string, err error) RefreshResult {
	return RefreshResult{Status: RefreshFailed, Path: path, Err: err}
}

func statusFor(warning error) RefreshStatus {
	if warning != nil {
		return RefreshDegraded
	}
	return RefreshOK
}

// Succeeded reports whether the result carries a snapshot.
func (r RefreshResult) Succeeded() bool {
	return r.Status == RefreshOK || r.Status == RefreshDegraded
}

// Kind returns the first path segment, "pool" or "user".
func (r RefreshResult) Kind() string {
	kind, _, _ := strings.Cut(r.Path, "/")
	return kind
}

// Block returns the block the carried snapshot was read at, or 0 when the
// result carries none.
func (r RefreshResult) Block() uint64 {
	switch {
	case r.Pool != nil:
		return r.Pool.LatestBlock
	case r.User != nil:
		return r.User.Block
	default:
		return 0
	}
}
