package notify

import (
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

var subjects = map[domain.NotificationKind]string{
	domain.NotificationSuccess: "排期通知",
	domain.NotificationError:   "排期失败",
}

// Decode 解析队列中的消息
func Decode(body []byte) (*domain.Notification, error) {
	n := &domain.Notification{}
	if err := json.Unmarshal(body, n); err != nil {
		return nil, err
	}
	if n.To == "" {
		return nil, fmt.Errorf("通知缺少收件人")
	}
	if _, ok := subjects[n.Kind]; !ok {
		return nil, fmt.Errorf("不支持的通知类型 %q", n.Kind)
	}
	return n, nil
}

// BuildMessage 根据通知和模板构造邮件
func BuildMessage(from string, tmpl *template.Template, n *domain.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}
	if err := msg.SetBodyHTMLTemplate(tmpl, n); err != nil {
		return nil, fmt.Errorf("无法设置邮件正文: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s - %s", subjects[n.Kind], n.Title))

	return msg, nil
}
