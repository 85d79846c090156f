package middleware

import (
	"github.com/gin-gonic/gin"
)

// Pruner 由 hub.Hub 实现
type Pruner interface {
	Prune() int
}

// PruneExpired 在每个请求处理之前触发一次机会式的过期房间清理。
// 清理本身有节流，绝大多数请求只是一次原子读。
func PruneExpired(p Pruner) gin.HandlerFunc {
	if p == nil {
		panic("Pruner cannot be nil for PruneExpired middleware")
	}
	return func(c *gin.Context) {
		p.Prune()
		c.Next()
	}
}
