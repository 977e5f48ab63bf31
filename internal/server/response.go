package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// respondMutation writes the updated membership, or a conflict when the
// operation did not apply to the record's current state.
func respondMutation[T any](c *gin.Context, item *T, err error) {
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if item == nil {
		AbortWithError(c, ErrNotModifiable)
		return
	}
	respondData(c, item)
}
