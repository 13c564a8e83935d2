package admin

import "github.com/gin-gonic/gin"

type IHandler interface {
	RequireToken() gin.HandlerFunc
	SetPaused(c *gin.Context)
}

type PauseSwitch interface {
	SetPaused(paused bool)
	Paused() bool
}
