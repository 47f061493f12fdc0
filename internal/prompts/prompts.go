// Package prompts holds the system prompts and localized UI strings.
package prompts

import "fmt"

// Lang codes accepted throughout the CLI.
const (
	LangEN = "en"
	LangCN = "cn"
)

const systemPromptEN = `You are a phone automation agent. You see the current
screen as an image and decide the single next action that moves the task
forward.

The screen coordinate system is normalized: both axes run from 0 to 999, with
(0,0) at the top-left corner, regardless of the device resolution.

Respond with your reasoning inside <think></think>, followed by exactly one
action inside <answer></answer>. The action must use one of these forms:

do(action="Launch", app="<app name>")
do(action="Tap", element=[x,y])
do(action="Double Tap", element=[x,y])
do(action="Long Press", element=[x,y])
do(action="Swipe", start=[x1,y1], end=[x2,y2])
do(action="Type", text="<text>")
do(action="Back")
do(action="Home")
do(action="Wait", duration="3 seconds")
do(action="Take_over", message="<why the user must act>")
finish(message="<result summary>")

Rules:
- One action per response. Never combine actions.
- "Type" replaces the entire content of the focused field.
- For risky or irreversible steps (payments, sending messages, deleting
  data), add message="<what you are about to do>" to the gesture so the
  user can confirm it first.
- Use "Take_over" when the screen requires a password, CAPTCHA, payment
  confirmation or anything only the user may do.
- Use "Wait" when content is still loading. Do not wait repeatedly if the
  screen is not changing.
- Call finish(message=...) once the task is complete, with a concise
  summary of the outcome.`

const systemPromptCN = `你是一个手机自动化智能体。你会看到当前屏幕截图，
并决定推进任务的下一步操作。

屏幕坐标系是归一化的：横纵坐标范围均为 0 到 999，(0,0) 位于左上角，
与设备实际分辨率无关。

请将思考过程写在 <think></think> 中，然后在 <answer></answer> 中给出
且仅给出一个动作。动作格式如下：

do(action="Launch", app="<应用名>")
do(action="Tap", element=[x,y])
do(action="Double Tap", element=[x,y])
do(action="Long Press", element=[x,y])
do(action="Swipe", start=[x1,y1], end=[x2,y2])
do(action="Type", text="<文本>")
do(action="Back")
do(action="Home")
do(action="Wait", duration="3 seconds")
do(action="Take_over", message="<需要用户操作的原因>")
finish(message="<结果总结>")

规则：
- 每次只输出一个动作，不要组合动作。
- "Type" 会替换输入框中的全部内容。
- 对于有风险或不可撤销的操作（支付、发送消息、删除数据），请在手势中
  附加 message="<即将执行的操作>"，以便用户先确认。
- 当屏幕需要密码、验证码、支付确认等只能由用户完成的操作时，使用
  "Take_over"。
- 内容加载中时使用 "Wait"。如果屏幕没有变化，不要反复等待。
- 任务完成后调用 finish(message=...)，简要总结结果。`

// SystemPrompt returns the system prompt for the given language. Unknown
// codes fall back to English.
func SystemPrompt(lang string) string {
	if lang == LangCN {
		return systemPromptCN
	}
	return systemPromptEN
}

var messagesEN = map[string]string{
	"thinking":                  "Thinking",
	"action":                    "Action",
	"task_completed":            "Task Completed",
	"done":                      "Done",
	"starting_task":             "Starting task",
	"final_result":              "Final Result",
	"task_result":               "Task Result",
	"confirmation_required":     "Confirmation Required",
	"continue_prompt":           "Continue? (y/n)",
	"manual_operation_required": "Manual Operation Required",
	"manual_operation_hint":     "Please complete the operation manually...",
	"press_enter_when_done":     "Press Enter when done",
	"connection_failed":         "Connection Failed",
	"connection_successful":     "Connection Successful",
	"step":                      "Step",
	"task":                      "Task",
	"result":                    "Result",
	"performance_metrics":       "Performance Metrics",
	"time_to_first_token":       "Time to First Token (TTFT)",
	"time_to_thinking_end":      "Time to Thinking End",
	"total_inference_time":      "Total Inference Time",
	"cleanup_checking_stale":    "Checking for stale files...",
	"cleanup_success":           "Screenshot cleanup successful",
	"cleanup_failed":            "Screenshot cleanup failed",
	"cleanup_retrying":          "Cleanup failed, retrying...",
	"cleanup_stale_removed":     "Removed stale files from %d hours ago",
}

var messagesCN = map[string]string{
	"thinking":                  "思考过程",
	"action":                    "执行动作",
	"task_completed":            "任务完成",
	"done":                      "完成",
	"starting_task":             "开始执行任务",
	"final_result":              "最终结果",
	"task_result":               "任务结果",
	"confirmation_required":     "需要确认",
	"continue_prompt":           "是否继续？(y/n)",
	"manual_operation_required": "需要人工操作",
	"manual_operation_hint":     "请手动完成操作...",
	"press_enter_when_done":     "完成后按回车继续",
	"connection_failed":         "连接失败",
	"connection_successful":     "连接成功",
	"step":                      "步骤",
	"task":                      "任务",
	"result":                    "结果",
	"performance_metrics":       "性能指标",
	"time_to_first_token":       "首 Token 延迟 (TTFT)",
	"time_to_thinking_end":      "思考完成延迟",
	"total_inference_time":      "总推理时间",
	"cleanup_checking_stale":    "检查是否有残留文件...",
	"cleanup_success":           "截图文件清理成功",
	"cleanup_failed":            "截图清理失败",
	"cleanup_retrying":          "清理失败，正在重试...",
	"cleanup_stale_removed":     "移除了 %d 小时前的残留文件",
}

// Messages returns the full UI message table for a language.
func Messages(lang string) map[string]string {
	if lang == LangCN {
		return messagesCN
	}
	return messagesEN
}

// Message looks up one UI string; the key itself is returned when no
// translation exists, so a missing entry degrades visibly but safely.
func Message(key, lang string) string {
	if msg, ok := Messages(lang)[key]; ok {
		return msg
	}
	return key
}

// Messagef formats a parameterized UI string.
func Messagef(key, lang string, args ...any) string {
	return fmt.Sprintf(Message(key, lang), args...)
}
