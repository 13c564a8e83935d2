package record

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

type IHandler interface {
	GetRecordStatus(c *gin.Context)
	ListRecords(c *gin.Context)
}

type StatusReader interface {
	GetRecordStatus(ctx context.Context, key string) (*relayer.RecordStatus, error)
	ListRecords(ctx context.Context, filter relayer.RecordFilter) (*relayer.RecordPage, error)
}
