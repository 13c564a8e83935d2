package model

import (
	"fmt"
	"strings"
)

// Chain identifies a source or payout chain.
type Chain string

const (
	ChainBTC Chain = "BTC"
	ChainZEC Chain = "ZEC"
	ChainSOL Chain = "SOL"
)

var AllChains = []Chain{ChainBTC, ChainZEC, ChainSOL}

func ParseChain(v string) (Chain, error) {
	switch c := Chain(strings.ToUpper(strings.TrimSpace(v))); c {
	case ChainBTC, ChainZEC, ChainSOL:
		return c, nil
	default:
		return "", fmt.Errorf("unknown chain %q", v)
	}
}

func (c Chain) String() string {
	return string(c)
}
