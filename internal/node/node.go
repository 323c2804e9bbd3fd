// Package node runs one window context as a standalone process.
package node

import (
	"github.com/danmuck/globalbehavior/internal/server"
	"github.com/gin-gonic/gin"
)

// Node is anything that exposes an admin router.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}

var _ Node = (*server.Admin)(nil)
