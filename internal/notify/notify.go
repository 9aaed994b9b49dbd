package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier 只负责投递，不向调用方返回结果
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Channel 是 *amqp.Channel 中用于发布的那部分
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueDeclarer 是 *amqp.Channel 中用于声明队列的那部分
type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// DeclareQueue 声明通知队列。api、reconcile 和 notify 三个进程必须使用相同的参数。
func DeclareQueue(ch QueueDeclarer, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // 持久化
		false, // 没有消费者时不自动删除
		false, // 非独占
		false, // 等待 RabbitMQ 确认
		nil,
	)
}

type Publisher struct {
	ch      Channel
	queue   string
	timeout time.Duration
}

func NewPublisher(ch Channel, queue string, timeout time.Duration) *Publisher {
	return &Publisher{
		ch:      ch,
		queue:   queue,
		timeout: timeout,
	}
}

// Notify 把通知序列化后发到队列，失败只记录日志
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) {
	if n.To == "" {
		slog.Warn("通知没有收件人，已忽略", "kind", n.Kind, "title", n.Title)
		return
	}

	body, err := json.Marshal(n)
	if err != nil {
		slog.Error("通知序列化失败", "error", err)
		return
	}

	// 调用方的请求可能已经结束，这里不继承它的取消
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		slog.Error("通知发送到消息队列失败", "queue", p.queue, "kind", n.Kind, "error", err)
	}
}

// Success 和 Failure 是构造通知的快捷方式
func Success(to *domain.User, title, message string) domain.Notification {
	return build(domain.NotificationSuccess, to, title, message)
}

func Failure(to *domain.User, title, message string) domain.Notification {
	return build(domain.NotificationError, to, title, message)
}

func build(kind domain.NotificationKind, to *domain.User, title, message string) domain.Notification {
	n := domain.Notification{
		Kind:    kind,
		Title:   title,
		Message: message,
	}
	if to != nil {
		n.To = to.Email
		n.FullName = to.FullName
	}
	return n
}
