package entity

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewTransferEvent(t *testing.T) {
	token := common.HexToAddress("0x28F77208728B0A45cAb24c4868334581Fe86F95B")
	log := LogEvent{
		Key:     EventKey{200, 3, 4},
		Address: token,
		Name:    EventTransfer,
		Args: map[string]any{
			"from":  testProvider,
			"to":    testAsset,
			"value": big.NewInt(40),
		},
	}

	got, err := NewTransferEvent(log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token != token {
		t.Errorf("Token = %s, want %s", got.Token, token)
	}
	if got.Value.Int64() != 40 {
		t.Errorf("Value = %s, want 40", got.Value)
	}

	if _, err := NewTransferEvent(LogEvent{Name: EventClaimed}); err == nil {
		t.Error("expected error for non-transfer log")
	}
}

func TestTransferEvent_SignedValue(t *testing.T) {
	user := testProvider
	peer := common.HexToAddress("0x3333333333333333333333333333333333333333")

	tests := []struct {
		name     string
		from, to common.Address
		want     int64
	}{
		{"inbound", peer, user, 40},
		{"outbound", user, peer, -40},
		{"self", user, user, 0},
		{"unrelated", peer, testAsset, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := TransferEvent{From: tt.from, To: tt.to, Value: big.NewInt(40)}
			if got := e.SignedValue(user); got.Int64() != tt.want {
				t.Errorf("SignedValue = %s, want %d", got, tt.want)
			}
		})
	}
}
