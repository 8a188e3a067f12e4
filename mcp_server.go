package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

type SendCodeArgs struct {
	Phone string `json:"phone"`
}

type VerifyCodeArgs struct {
	Code string `json:"code"`
}

type PublishNoteArgs struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type ScheduleNoteArgs struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Images    []string `json:"images"`
	PublishAt string   `json:"publish_at"`
}

type JobArgs struct {
	JobID int64 `json:"job_id"`
}

// InitMCPServer 初始化 MCP Server
func InitMCPServer(appServer *AppServer) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "xhs-autopost",
			Version: "1.0.0",
		},
		nil,
	)

	registerTools(server, appServer)

	logrus.Info("MCP Server initialized with official SDK")

	return server
}

func withPanicRecovery[T any](
	toolName string,
	handler func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, any, error),
) func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, any, error) {

	return func(ctx context.Context, req *mcp.CallToolRequest, args T) (result *mcp.CallToolResult, resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"tool":  toolName,
					"panic": r,
				}).Error("Tool handler panicked")

				logrus.Errorf("Stack trace:\n%s", debug.Stack())

				result = &mcp.CallToolResult{
					Content: []mcp.Content{
						&mcp.TextContent{
							Text: fmt.Sprintf("工具 %s 执行时发生内部错误: %v\n\n请查看服务端日志获取详细信息", toolName, r),
						},
					},
					IsError: true,
				}
				resp = nil
				err = nil
			}
		}()

		return handler(ctx, req, args)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return textResult(string(data))
}

func registerTools(server *mcp.Server, appServer *AppServer) {
	svc := appServer.service

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "check_login_status",
			Description: "检查小红书登录状态",
		},
		withPanicRecovery("check_login_status", func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
			loggedIn, err := svc.LoginStatus(ctx)
			if err != nil {
				return errorResult(err), nil, nil
			}
			if loggedIn {
				return textResult("已登录"), nil, nil
			}
			return textResult("未登录，请先调用 send_login_code 发起登录"), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "send_login_code",
			Description: "向手机号发送登录验证码，发起登录流程",
		},
		withPanicRecovery("send_login_code", func(ctx context.Context, req *mcp.CallToolRequest, args SendCodeArgs) (*mcp.CallToolResult, any, error) {
			if err := svc.SendCode(ctx, args.Phone); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult("验证码已发送，收到后调用 verify_login_code 完成登录"), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "verify_login_code",
			Description: "提交短信验证码完成登录，成功后凭据会持久化",
		},
		withPanicRecovery("verify_login_code", func(ctx context.Context, req *mcp.CallToolRequest, args VerifyCodeArgs) (*mcp.CallToolResult, any, error) {
			if err := svc.VerifyCode(ctx, args.Code); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult("登录成功，凭据已保存"), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "publish_note",
			Description: "立即发布图文笔记。images 支持本地路径和 http(s) 链接",
		},
		withPanicRecovery("publish_note", func(ctx context.Context, req *mcp.CallToolRequest, args PublishNoteArgs) (*mcp.CallToolResult, any, error) {
			result, err := svc.Publish(ctx, &PublishRequest{
				Title:   args.Title,
				Content: args.Content,
				Images:  args.Images,
			})
			if err != nil {
				return errorResult(err), nil, nil
			}
			return jsonResult(result), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "schedule_note",
			Description: "登记定时发布任务。publish_at 格式 2006-01-02 15:04，本地时区",
		},
		withPanicRecovery("schedule_note", func(ctx context.Context, req *mcp.CallToolRequest, args ScheduleNoteArgs) (*mcp.CallToolResult, any, error) {
			job, err := svc.Schedule(&ScheduleRequest{
				Title:     args.Title,
				Content:   args.Content,
				Images:    args.Images,
				PublishAt: args.PublishAt,
			})
			if err != nil {
				return errorResult(err), nil, nil
			}
			return jsonResult(job), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_scheduled_notes",
			Description: "列出全部定时发布任务及其状态",
		},
		withPanicRecovery("list_scheduled_notes", func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
			return jsonResult(svc.ListJobs()), nil, nil
		}),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cancel_scheduled_note",
			Description: "取消一条尚未执行的定时任务",
		},
		withPanicRecovery("cancel_scheduled_note", func(ctx context.Context, req *mcp.CallToolRequest, args JobArgs) (*mcp.CallToolResult, any, error) {
			if err := svc.CancelJob(args.JobID); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(fmt.Sprintf("任务 #%d 已取消", args.JobID)), nil, nil
		}),
	)
}
