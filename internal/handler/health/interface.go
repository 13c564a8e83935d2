package health

import "github.com/gin-gonic/gin"

// IHealthHandler serves liveness, database, chain backend and job checks.
type IHealthHandler interface {
	Basic(c *gin.Context)
	Database(c *gin.Context)
	External(c *gin.Context)
	Jobs(c *gin.Context)
}