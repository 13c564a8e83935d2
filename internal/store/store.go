package store

import (
	"github.com/dwarvesf/zenz-bridge/internal/store/depositrecord"
	"github.com/dwarvesf/zenz-bridge/internal/store/reserveledger"
	"github.com/dwarvesf/zenz-bridge/internal/store/statustransition"
	"github.com/dwarvesf/zenz-bridge/internal/store/withdrawalrecord"
)

type Store struct {
	DepositRecord    depositrecord.IStore
	WithdrawalRecord withdrawalrecord.IStore
	ReserveLedger    reserveledger.IStore
	StatusTransition statustransition.IStore
}

func New() *Store {
	return &Store{
		DepositRecord:    depositrecord.New(),
		WithdrawalRecord: withdrawalrecord.New(),
		ReserveLedger:    reserveledger.New(),
		StatusTransition: statustransition.New(),
	}
}
