package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/common"
	"github.com/neatchat/neatchat/common/config"
)

func GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"version":       common.Version,
			"start_time":    common.StartTime,
			"default_model": config.DefaultModel,
		},
	})
}
