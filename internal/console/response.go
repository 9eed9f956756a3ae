package console

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentconsole/internal/agentrun"
)

func writeOK[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, agentrun.Success(data))
}

func writeMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, agentrun.Envelope[any]{Code: 0, Message: message})
}

// writeError aborts with an envelope whose code is the HTTP status.
func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, agentrun.Envelope[any]{Code: status, Message: message})
}
