package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// 内置邮件模板
const (
	TemplateFormSubmitted = "form_submitted"
	TemplateFormApproved  = "form_approved"
	TemplateFormRejected  = "form_rejected"
	TemplateFormDone      = "form_done"
	TemplateFormReminder  = "form_reminder"
)

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// FormMailData 表单邮件模板数据
type FormMailData struct {
	FormID        string
	FormName      string
	RequesterName string
	Level         int
	Remark        string
	SystemURL     string
	PendingSince  string
}

// Render 渲染内置模板
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("渲染邮件模板失败: %w", err)
	}
	return buf.String(), nil
}
