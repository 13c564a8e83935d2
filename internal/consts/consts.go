package consts

const (
	BTC_DECIMALS = 8
	ZEC_DECIMALS = 8
	SOL_DECIMALS = 9

	// representative asset minted on Solana
	ZENZEC_DECIMALS = 8
)

const (
	DefaultMaxSettlementAttempts = 3
	DefaultSweepBatchSize        = 100
)
