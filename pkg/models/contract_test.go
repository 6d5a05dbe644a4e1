package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContract_HasBid(t *testing.T) {
	const hash = "0xAbC0000000000000000000000000000000000000000000000000000000000001"

	tests := []struct {
		name    string
		lastBid *Bid
		want    bool
	}{
		{name: "no bid", lastBid: nil, want: false},
		{name: "recorded but not indexed", lastBid: &Bid{TxHash: hash}, want: false},
		{name: "indexed", lastBid: &Bid{TxHash: hash, Indexed: true}, want: true},
		{name: "indexed case insensitive", lastBid: &Bid{TxHash: "0xabc0000000000000000000000000000000000000000000000000000000000001", Indexed: true}, want: true},
		{name: "indexed other tx", lastBid: &Bid{TxHash: "0x01", Indexed: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contract{LastBid: tt.lastBid}
			assert.Equal(t, tt.want, c.HasBid(hash))
		})
	}
}
