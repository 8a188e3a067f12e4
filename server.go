package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// AppServer HTTP 服务壳：REST API 与 MCP 共用一个端口。
type AppServer struct {
	service *PosterService
}

func NewAppServer(service *PosterService) *AppServer {
	return &AppServer{service: service}
}

// SuccessResponse 统一成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// setupRoutes 注册全部路由
func setupRoutes(s *AppServer) *gin.Engine {
	router := gin.Default()

	router.GET("/health", s.handleHealthCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/login/send_code", s.sendCodeHandler)
		api.POST("/login/verify", s.verifyCodeHandler)
		api.GET("/login/status", s.checkLoginStatusHandler)
		api.DELETE("/login/cookies", s.deleteCookiesHandler)

		api.POST("/publish", s.publishHandler)
		api.POST("/schedule", s.scheduleHandler)
		api.GET("/jobs", s.listJobsHandler)
		api.GET("/jobs/:id", s.getJobHandler)
		api.POST("/jobs/:id/cancel", s.cancelJobHandler)
	}

	// MCP 与 REST 共用端口
	mcpServer := InitMCPServer(s)
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)
	router.Any("/mcp", gin.WrapH(handler))
	router.Any("/mcp/*path", gin.WrapH(handler))

	return router
}

// Start 启动 HTTP 服务，阻塞直到退出。
func (s *AppServer) Start(addr string) error {
	router := setupRoutes(s)

	logrus.Infof("HTTP 服务启动于 %s", addr)
	logrus.Infof("MCP 端点: http://localhost%s/mcp", addr)

	return router.Run(addr)
}
