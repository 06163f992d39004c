package web_service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pzhenzhou/respcli/pkg/mockserver"
)

const (
	KeyspacePath = "/keyspace"
)

func mockServerFrom(ctx *gin.Context) *mockserver.Server {
	object, _ := ctx.Get(StateKeyMockServer)
	return object.(*mockserver.Server)
}

var _ WebHandler = (*KeyspaceStatsHandler)(nil)

type KeyspaceStatsHandler struct{}

func (k *KeyspaceStatsHandler) Path() string {
	return KeyspacePath
}

func (k *KeyspaceStatsHandler) Method() HttpMethod {
	return GET
}

func (k *KeyspaceStatsHandler) Handler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, ApiResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data:    mockServerFrom(ctx).Stats(),
	})
}

type SeedKeyRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
	TTLMs int64  `json:"ttl_ms"`
}

var _ WebHandler = (*SeedKeyHandler)(nil)

// SeedKeyHandler stores one key in the mock keyspace, for preparing fixtures
// without a RESP client.
type SeedKeyHandler struct{}

func (s *SeedKeyHandler) Path() string {
	return KeyspacePath
}

func (s *SeedKeyHandler) Method() HttpMethod {
	return POST
}

func (s *SeedKeyHandler) Handler(ctx *gin.Context) {
	var request SeedKeyRequest
	if err := ctx.ShouldBindBodyWithJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, ApiResponse{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return
	}
	if request.TTLMs < 0 {
		ctx.JSON(http.StatusBadRequest, ApiResponse{
			Code:    http.StatusBadRequest,
			Message: "ttl_ms must not be negative",
		})
		return
	}
	ttl := time.Duration(request.TTLMs) * time.Millisecond
	mockServerFrom(ctx).Keyspace().Set(request.Key, []byte(request.Value), ttl)
	logger.Info("key seeded", "key", request.Key, "ttl", ttl)
	ctx.JSON(http.StatusOK, ApiResponse{
		Code:    http.StatusOK,
		Message: "key stored",
	})
}

var _ WebHandler = (*FlushKeyspaceHandler)(nil)

type FlushKeyspaceHandler struct{}

func (f *FlushKeyspaceHandler) Path() string {
	return KeyspacePath
}

func (f *FlushKeyspaceHandler) Method() HttpMethod {
	return DELETE
}

func (f *FlushKeyspaceHandler) Handler(ctx *gin.Context) {
	srv := mockServerFrom(ctx)
	removed := srv.Keyspace().Len()
	srv.Keyspace().Flush()
	logger.Info("keyspace flushed", "keys", removed)
	ctx.JSON(http.StatusOK, ApiResponse{
		Code:    http.StatusOK,
		Message: "keyspace flushed",
		Data:    gin.H{"removed": removed},
	})
}
