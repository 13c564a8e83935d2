package main

import (
	"github.com/dwarvesf/zenz-bridge/internal/server"
)

// @title           zenz-bridge API
// @version         1.0
// @description     Settlement API for BTC, ZEC and SOL deposits minted on Solana and withdrawals paid back out.
// @BasePath        /api/v1
// @securityDefinitions.apikey AdminToken
// @in header
// @name X-Admin-Token
func main() {
	server.Init()
}
