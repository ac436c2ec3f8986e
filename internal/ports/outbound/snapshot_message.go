package outbound

import (
	"math/big"
	"strings"
	"time"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// SnapshotMessage is the wire form of a refresh result, published to
// downstream consumers and served over HTTP. Integer amounts are base-10
// strings so that consumers never lose precision.
type SnapshotMessage struct {
	// MessageID is unique per emission.
	MessageID string `json:"messageId"`

	// Kind is "pool" or "user".
	Kind string `json:"kind"`

	// Path identifies the snapshot, e.g. "pool/0xC02a..." or "user/0xA11CE.../0xC02a...".
	Path string `json:"path"`

	// Status is "ok", "degraded" or "failed".
	Status string `json:"status"`

	// Block is the block the snapshot was read at. Zero on failure.
	Block uint64 `json:"block"`

	// Warning explains a degraded snapshot.
	Warning string `json:"warning,omitempty"`

	// Error explains a failed refresh.
	Error string `json:"error,omitempty"`

	Pool *PoolSnapshotMessage `json:"pool,omitempty"`
	User *UserSnapshotMessage `json:"user,omitempty"`

	EmittedAt time.Time `json:"emittedAt"`
}

type PoolSnapshotMessage struct {
	Asset                string    `json:"asset"`
	LPToken              string    `json:"lpToken"`
	LatestBlock          uint64    `json:"latestBlock"`
	PreviousBlock        uint64    `json:"previousBlock"`
	ExchangeRateCurrent  string    `json:"exchangeRateCurrent"`
	ExchangeRatePrevious string    `json:"exchangeRatePrevious"`
	LiquidReserves       string    `json:"liquidReserves"`
	UtilizedReserves     string    `json:"utilizedReserves"`
	UndistributedLpFees  string    `json:"undistributedLpFees"`
	TotalPoolSize        string    `json:"totalPoolSize"`
	LiquidityUtilization string    `json:"liquidityUtilization"`
	BlocksElapsed        uint64    `json:"blocksElapsed"`
	SecondsElapsed       uint64    `json:"secondsElapsed"`
	EstimatedApy         string    `json:"estimatedApy"`
	EstimatedApr         string    `json:"estimatedApr"`
	ProjectedApr         *string   `json:"projectedApr"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type UserSnapshotMessage struct {
	User                  string    `json:"user"`
	Asset                 string    `json:"asset"`
	Block                 uint64    `json:"block"`
	LPTokenBalance        string    `json:"lpTokenBalance"`
	StakedBalance         string    `json:"stakedBalance"`
	PositionValue         string    `json:"positionValue"`
	TotalDeposited        string    `json:"totalDeposited"`
	AirdropBalance        string    `json:"airdropBalance"`
	TransferValue         string    `json:"transferValue"`
	NetBalanceTransferred string    `json:"netBalanceTransferred"`
	FeesEarned            string    `json:"feesEarned"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// NewSnapshotMessage converts a refresh result. messageID and emittedAt are
// supplied by the publisher.
func NewSnapshotMessage(messageID string, result entity.RefreshResult, emittedAt time.Time) SnapshotMessage {
	msg := SnapshotMessage{
		MessageID: messageID,
		Kind:      result.Kind(),
		Path:      result.Path,
		Status:    result.Status.String(),
		EmittedAt: emittedAt.UTC(),
	}
	if result.Warning != nil {
		msg.Warning = result.Warning.Error()
	}
	if result.Err != nil {
		msg.Error = result.Err.Error()
	}

	if p := result.Pool; p != nil {
		msg.Block = p.LatestBlock
		msg.Pool = NewPoolSnapshotMessage(p)
	}
	if u := result.User; u != nil {
		msg.Block = u.Block
		msg.User = NewUserSnapshotMessage(u)
	}
	return msg
}

func NewPoolSnapshotMessage(p *entity.PoolSnapshot) *PoolSnapshotMessage {
	m := &PoolSnapshotMessage{
		Asset:                p.Asset.Hex(),
		LPToken:              p.LPToken.Hex(),
		LatestBlock:          p.LatestBlock,
		PreviousBlock:        p.PreviousBlock,
		ExchangeRateCurrent:  bigString(p.ExchangeRateCurrent),
		ExchangeRatePrevious: bigString(p.ExchangeRatePrevious),
		LiquidReserves:       bigString(p.LiquidReserves),
		UtilizedReserves:     bigString(p.UtilizedReserves),
		UndistributedLpFees:  bigString(p.UndistributedLpFees),
		TotalPoolSize:        bigString(p.TotalPoolSize),
		LiquidityUtilization: bigString(p.LiquidityUtilization),
		BlocksElapsed:        p.BlocksElapsed,
		SecondsElapsed:       p.SecondsElapsed,
		EstimatedApy:         p.EstimatedApy.String(),
		EstimatedApr:         p.EstimatedApr.String(),
		UpdatedAt:            p.UpdatedAt.UTC(),
	}
	if p.ProjectedApr != nil {
		s := p.ProjectedApr.String()
		m.ProjectedApr = &s
	}
	return m
}

func NewUserSnapshotMessage(u *entity.UserSnapshot) *UserSnapshotMessage {
	return &UserSnapshotMessage{
		User:                  u.User.Hex(),
		Asset:                 u.Asset.Hex(),
		Block:                 u.Block,
		LPTokenBalance:        bigString(u.LPTokenBalance),
		StakedBalance:         bigString(u.StakedBalance),
		PositionValue:         bigString(u.PositionValue),
		TotalDeposited:        bigString(u.TotalDeposited),
		AirdropBalance:        bigString(u.AirdropBalance),
		TransferValue:         bigString(u.TransferValue),
		NetBalanceTransferred: bigString(u.NetBalanceTransferred),
		FeesEarned:            bigString(u.FeesEarned),
		UpdatedAt:             u.UpdatedAt.UTC(),
	}
}

// Asset returns the asset segment of the path. Both pool and user paths end
// with the asset address.
func (m SnapshotMessage) Asset() string {
	return m.Path[strings.LastIndex(m.Path, "/")+1:]
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
