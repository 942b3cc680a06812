package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier 通知桥：步骤倒计时归零时由核心调用，声音/弹窗由外部实现
type Notifier interface {
	StepComplete(bedID int, stepName string)
}

// NopNotifier 空实现（测试/禁用场景）
type NopNotifier struct{}

func (NopNotifier) StepComplete(int, string) {}

// alertPayload 提醒消息体
type alertPayload struct {
	BedID     int    `json:"bed_id"`
	StepName  string `json:"step_name"`
	Timestamp int64  `json:"timestamp"`
}

// MQTTNotifier 向诊所提醒主题发布步骤完成消息
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTClient 连接 MQTT Broker
func NewMQTTClient(broker, clientID, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// NewMQTTNotifier 创建 MQTT 通知器
func NewMQTTNotifier(client mqtt.Client, topic string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

// StepComplete 发布提醒（异步等待结果，失败仅记录）
func (n *MQTTNotifier) StepComplete(bedID int, stepName string) {
	data, err := json.Marshal(alertPayload{
		BedID:     bedID,
		StepName:  stepName,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		n.logger.Error("Failed to marshal alert payload",
			zap.Error(err),
		)
		return
	}

	token := n.client.Publish(n.topic, n.qos, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			n.logger.Error("Failed to publish step-complete alert",
				zap.Int("bed_id", bedID),
				zap.Error(token.Error()),
			)
		}
	}()
}

// WebhookNotifier 向外部告警服务 POST 步骤完成消息
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0) // fire-and-forget，不自动重试
	return &WebhookNotifier{
		client: client,
		url:    url,
		logger: logger,
	}
}

// StepComplete 发送提醒（异步，失败仅记录）
func (n *WebhookNotifier) StepComplete(bedID int, stepName string) {
	payload := alertPayload{
		BedID:     bedID,
		StepName:  stepName,
		Timestamp: time.Now().Unix(),
	}

	go func() {
		resp, err := n.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(n.url)
		if err != nil {
			n.logger.Error("Failed to post step-complete webhook",
				zap.Int("bed_id", bedID),
				zap.Error(err),
			)
			return
		}
		if resp.IsError() {
			n.logger.Error("Step-complete webhook returned error status",
				zap.Int("bed_id", bedID),
				zap.Int("status_code", resp.StatusCode()),
			)
		}
	}()
}

// MultiNotifier 将提醒扇出到多个通知器
type MultiNotifier []Notifier

func (m MultiNotifier) StepComplete(bedID int, stepName string) {
	for _, n := range m {
		n.StepComplete(bedID, stepName)
	}
}
