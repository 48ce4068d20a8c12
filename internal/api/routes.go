package api

import (
	"github.com/gin-gonic/gin"
)

// Handlers 汇总需要注册的处理器。
type Handlers struct {
	Templates *TemplateHandler
	Render    *RenderHandler
	CV        *CVHandler
	Assets    *AssetHandler
	Ws        *WsHandler
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, h Handlers, authMiddleware gin.HandlerFunc) {
	v1 := router.Group("/v1")
	{
		v1.GET("/ws", h.Ws.HandleConnection)

		authed := v1.Group("")
		authed.Use(authMiddleware)
		{
			authed.GET("/capabilities", h.Templates.GetCapabilities)

			authed.GET("/cv", h.CV.GetCV)
			authed.PUT("/cv", h.CV.PutCV)

			authed.POST("/assets/photo", h.Assets.UploadPhoto)

			authed.GET("/online", h.Render.Online)
		}

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.GET("", h.Templates.ListTemplates)
			templateGroup.POST("/generate", h.Templates.GenerateTemplate)
			templateGroup.DELETE("/generate/:taskID", h.Templates.CancelGeneration)
			templateGroup.POST("/:id/activate", h.Templates.ActivateTemplate)
			templateGroup.POST("/:id/deactivate", h.Templates.DeactivateTemplate)
			templateGroup.DELETE("/:id", h.Templates.DeleteTemplate)
		}

		renderGroup := v1.Group("/render")
		renderGroup.Use(authMiddleware)
		{
			renderGroup.POST("/preview", h.Render.Preview)
			renderGroup.POST("/export", h.Render.Export)
			renderGroup.GET("/exports/:exportID/link", h.Render.ExportLink)
		}
	}
}
