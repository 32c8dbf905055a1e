// Package scope carries the requesting store and operator through a
// request's context.
package scope

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	StoreHeader    = "X-Store-ID"
	OperatorHeader = "X-Operator-ID"
)

type ctxKey int

const (
	storeKey ctxKey = iota
	operatorKey
)

// WithStore returns a context carrying storeID.
func WithStore(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, storeKey, storeID)
}

// Store returns the store id on ctx, or "" for platform scope.
func Store(ctx context.Context) string {
	s, _ := ctx.Value(storeKey).(string)
	return s
}

// WithOperator returns a context carrying the operator id.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorKey, operatorID)
}

// Operator returns the operator id on ctx.
func Operator(ctx context.Context) string {
	s, _ := ctx.Value(operatorKey).(string)
	return s
}

// Middleware copies the scope headers onto the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := strings.TrimSpace(c.GetHeader(StoreHeader)); id != "" {
			ctx = WithStore(ctx, id)
		}
		if id := strings.TrimSpace(c.GetHeader(OperatorHeader)); id != "" {
			ctx = WithOperator(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
