package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "SolTradeBot/internal/errors"
)

// RabbitMQConfig 描述 RabbitMQ 事件发布的连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// RabbitMQPublisher 将交易事件发布到一个 fanout exchange，供风控、
// 通知等下游系统订阅。没有消费者时事件被丢弃，这里不做持久重试。
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher 创建 RabbitMQ 发布器实例。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "soltradebot.trades"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish 实现 Publisher。
func (p *RabbitMQPublisher) Publish(ctx context.Context, event TradeEvent) error {
	if p == nil || p.ch == nil {
		return xerrors.New(xerrors.CodeEventPublishFailure, "RabbitMQ 发布器未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEventPublishFailure, err, "序列化交易事件失败")
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Body:        body,
	}); err != nil {
		return xerrors.Wrap(xerrors.CodeEventPublishFailure, err, "发布交易事件失败")
	}
	return nil
}

// Close 释放连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	var err error
	if p.ch != nil {
		err = errors.Join(err, p.ch.Close())
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
