package routes

import (
	"github.com/gin-gonic/gin"

	"jansetu-be/controllers"
)

// IssueRoutes sets up the issue routes. The static stats and export paths
// register ahead of the id parameter.
func IssueRoutes(r *gin.Engine, ctrl *controllers.IssueController, middleware ...gin.HandlerFunc) {
	issues := r.Group("/api/issues", middleware...)
	{
		issues.GET("/stats", ctrl.GetStats)
		issues.GET("/export", ctrl.ExportIssues)
		issues.GET("", ctrl.ListIssues)
		issues.POST("", ctrl.CreateIssue)
		issues.GET("/:id", ctrl.GetIssue)
		issues.PUT("/:id", ctrl.UpdateIssue)
		issues.DELETE("/:id", ctrl.DeleteIssue)
	}
}
