package service

import (
	"fmt"
	"strings"
)

func RenderSummaryMarkdown(result *SessionResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# %s 练习记录\n\n", result.ExpName))
	b.WriteString(fmt.Sprintf("- participant: %s\n", result.Participant))
	b.WriteString(fmt.Sprintf("- session: %s\n", result.Session))
	b.WriteString(fmt.Sprintf("- date: %s\n", result.Date))
	if result.SessionID != 0 {
		b.WriteString(fmt.Sprintf("- session_id: %d\n", result.SessionID))
	}
	b.WriteString(fmt.Sprintf("- seed: %d\n", result.Seed))
	if result.FrameRate > 0 {
		b.WriteString(fmt.Sprintf("- frame_rate: %.2f Hz\n", result.FrameRate))
	} else {
		b.WriteString("- frame_rate: 未测量\n")
	}
	b.WriteString(fmt.Sprintf("- flips: %d (dropped %d)\n\n", result.Flips, result.Dropped))

	s := result.Summary
	b.WriteString("## 试次计数\n\n")
	b.WriteString("| Trials | Responded | Correct | Incorrect | Accuracy |\n")
	b.WriteString("| ---: | ---: | ---: | ---: | ---: |\n")
	b.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %.3f |\n\n",
		s.Trials, s.Responded, s.Correct, s.Incorrect, s.Accuracy))

	b.WriteString("## 输出文件\n\n")
	b.WriteString(fmt.Sprintf("- %s\n", result.CSVPath))
	b.WriteString(fmt.Sprintf("- %s\n", result.JSONPath))

	if len(result.Errors) > 0 {
		b.WriteString("\n## 执行错误（如有）\n\n")
		max := len(result.Errors)
		if max > 20 {
			max = 20
		}
		for i := 0; i < max; i++ {
			b.WriteString(fmt.Sprintf("- %s\n", result.Errors[i]))
		}
		if len(result.Errors) > max {
			b.WriteString(fmt.Sprintf("- ...(剩余 %d 条省略)\n", len(result.Errors)-max))
		}
	}
	return b.String()
}
