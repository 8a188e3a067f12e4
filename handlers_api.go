package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xhs-tools/autopost/scheduler"
	"github.com/xhs-tools/autopost/xiaohongshu"
)

// respondError 返回错误响应
func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d", c.Request.Method, c.Request.URL.Path, statusCode)

	c.JSON(statusCode, response)
}

// respondSuccess 返回成功响应
func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	logrus.Infof("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)

	c.JSON(http.StatusOK, response)
}

// SendCodeRequest 发送验证码请求
type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// VerifyCodeRequest 提交验证码请求
type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// sendCodeHandler 发起登录，向手机号发送验证码
func (s *AppServer) sendCodeHandler(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	if err := s.service.SendCode(c.Request.Context(), req.Phone); err != nil {
		respondError(c, http.StatusInternalServerError, "SEND_CODE_FAILED", "发送验证码失败", err.Error())
		return
	}
	respondSuccess(c, nil, "验证码已发送")
}

// verifyCodeHandler 提交验证码完成登录
func (s *AppServer) verifyCodeHandler(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	if err := s.service.VerifyCode(c.Request.Context(), req.Code); err != nil {
		if errors.Is(err, xiaohongshu.ErrLoginTimeout) {
			respondError(c, http.StatusRequestTimeout, "LOGIN_TIMEOUT", "登录超时", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "LOGIN_FAILED", "登录失败", err.Error())
		return
	}
	respondSuccess(c, nil, "登录成功")
}

// checkLoginStatusHandler 检查登录状态
func (s *AppServer) checkLoginStatusHandler(c *gin.Context) {
	loggedIn, err := s.service.LoginStatus(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STATUS_CHECK_FAILED", "检查登录状态失败", err.Error())
		return
	}
	respondSuccess(c, gin.H{"logged_in": loggedIn}, "检查完成")
}

// deleteCookiesHandler 删除登录凭据，重置登录状态
func (s *AppServer) deleteCookiesHandler(c *gin.Context) {
	if err := s.service.DeleteCookies(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, "DELETE_COOKIES_FAILED", "删除凭据失败", err.Error())
		return
	}
	respondSuccess(c, nil, "凭据已删除，需要重新登录")
}

// publishHandler 立即发布图文笔记
func (s *AppServer) publishHandler(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	result, err := s.service.Publish(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			respondError(c, http.StatusUnauthorized, "NOT_LOGGED_IN", "当前未登录", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "PUBLISH_FAILED", "发布失败", err.Error())
		return
	}
	respondSuccess(c, result, "发布成功")
}

// scheduleHandler 登记定时发布任务
func (s *AppServer) scheduleHandler(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	job, err := s.service.Schedule(&req)
	if err != nil {
		if errors.Is(err, scheduler.ErrPastInstant) {
			respondError(c, http.StatusBadRequest, "PAST_INSTANT", "发布时间必须晚于当前时间", err.Error())
			return
		}
		respondError(c, http.StatusBadRequest, "SCHEDULE_FAILED", "登记定时任务失败", err.Error())
		return
	}
	respondSuccess(c, job, "定时任务已登记")
}

// listJobsHandler 列出全部定时任务
func (s *AppServer) listJobsHandler(c *gin.Context) {
	respondSuccess(c, gin.H{"jobs": s.service.ListJobs()}, "获取任务列表成功")
}

// getJobHandler 查询单个任务
func (s *AppServer) getJobHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_JOB_ID", "任务ID无效", err.Error())
		return
	}

	job, err := s.service.GetJob(id)
	if err != nil {
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "任务不存在", err.Error())
		return
	}
	respondSuccess(c, job, "获取任务成功")
}

// cancelJobHandler 取消尚未执行的任务
func (s *AppServer) cancelJobHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_JOB_ID", "任务ID无效", err.Error())
		return
	}

	if err := s.service.CancelJob(id); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrNotFound):
			respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "任务不存在", err.Error())
		case errors.Is(err, scheduler.ErrInvalidState):
			respondError(c, http.StatusConflict, "JOB_NOT_CANCELLABLE", "任务当前状态不允许取消", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "CANCEL_FAILED", "取消任务失败", err.Error())
		}
		return
	}
	respondSuccess(c, gin.H{"job_id": id}, "任务已取消")
}

// handleHealthCheck 健康检查端点
func (s *AppServer) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"status":    "healthy",
			"service":   "xhs-autopost",
			"timestamp": time.Now().Unix(),
		},
		"message": "服务正常",
	})
}
