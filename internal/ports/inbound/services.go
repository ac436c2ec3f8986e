// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// PoolStateRefresher is the use case surface of the state orchestrator.
// Pollers and queue consumers call these methods; every call returns the
// outcome it also handed to the snapshot sink.
type PoolStateRefresher interface {
	RefreshPool(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult
	RefreshUser(ctx context.Context, user, asset common.Address) entity.RefreshResult
	RefreshUserFromReceipt(ctx context.Context, user common.Address, receipt entity.Receipt) entity.RefreshResult
}

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - pool_state.Poller: ready after the first refresh cycle, healthy while cycles complete on schedule
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	// Used by ECS/Kubernetes readiness probes during rolling deployments.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	// Used by ECS/Kubernetes liveness probes to detect stuck services.
	IsHealthy() bool
}
