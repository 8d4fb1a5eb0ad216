package routers

import (
	"github.com/GrainArc/HydroMesh/metrics"
	"github.com/GrainArc/HydroMesh/views"
	"github.com/gin-gonic/gin"
)

func WaterRouters(r *gin.Engine, ctrl *views.WaterController, m *metrics.Collector) {
	r.GET("/metrics", gin.WrapH(m.Handler()))

	waterRouter := r.Group("/water")
	{
		waterRouter.POST("/project", ctrl.Project)
		waterRouter.POST("/unproject", ctrl.Unproject)
		waterRouter.POST("/mesh", ctrl.Mesh)
		waterRouter.POST("/cross_section", ctrl.CrossSection)
		waterRouter.POST("/flooded", ctrl.Flooded)

		waterRouter.GET("/sites", ctrl.ListSites)
		waterRouter.GET("/sites/:site", ctrl.GetSite)
		waterRouter.GET("/sites/:site/levels", ctrl.ListLevels)
		waterRouter.POST("/sites/:site/levels", ctrl.SaveLevel)
		waterRouter.DELETE("/sites/:site/levels/:level", ctrl.DeleteLevel)
		waterRouter.GET("/sites/:site/levels/:level/mesh", ctrl.LevelMesh)
		waterRouter.POST("/sites/:site/build", ctrl.StartBuild)

		waterRouter.GET("/tasks/:taskId", ctrl.GetTask)
		waterRouter.GET("/ws", ctrl.TaskWebSocket)
	}
}

// NewEngine 组装中间件和全部路由
func NewEngine(ctrl *views.WaterController, m *metrics.Collector, log gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), log, m.Middleware())
	WaterRouters(r, ctrl, m)
	return r
}
