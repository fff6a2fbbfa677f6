// Package messaging 高级订单事件发布
package messaging

import (
	"context"
	"time"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/mq"
)

// publishTimeout 单条事件的发布超时
const publishTimeout = 5 * time.Second

// KafkaEventPublisher Kafka 事件发布器。
// 事件以订单号为 key，同一订单的事件落在同一分区保序。
type KafkaEventPublisher struct {
	producer       *mq.KafkaProducer
	lifecycleTopic string
	executionTopic string
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(producer *mq.KafkaProducer, lifecycleTopic, executionTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:       producer,
		lifecycleTopic: lifecycleTopic,
		executionTopic: executionTopic,
	}
}

// PublishLifecycle 发布订单状态变迁事件
func (p *KafkaEventPublisher) PublishLifecycle(event domain.OrderLifecycleEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.producer.SendMessage(ctx, p.lifecycleTopic, event.OrderID, event)
}

// PublishExecution 发布执行记录追加事件
func (p *KafkaEventPublisher) PublishExecution(event domain.ExecutionRecordedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.producer.SendMessage(ctx, p.executionTopic, event.OrderID, event)
}
