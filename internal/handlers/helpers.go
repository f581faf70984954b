package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 50

// pagination reads skip/take query params with sane bounds.
func pagination(c *gin.Context) (skip, take int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	take, _ = strconv.Atoi(c.DefaultQuery("take", strconv.Itoa(defaultPageSize)))
	if skip < 0 {
		skip = 0
	}
	if take <= 0 || take > 200 {
		take = defaultPageSize
	}
	return skip, take
}
