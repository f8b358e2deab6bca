package ws

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)
	IncrementReplacedSessions()

	// 消息指标
	IncrementMessageCount(msgType string)
	RecordMessageLatency(msgType string, d time.Duration)
	IncrementMessageErrors(msgType string)

	// 房间指标
	SetRoomCount(count int)

	// 投递指标
	RecordBroadcastLatency(d time.Duration)
	IncrementDroppedMessages()

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementInvalidMessages()
}

var _ Metrics = NoopMetrics{}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (NoopMetrics) IncrementConnections()                                {}
func (NoopMetrics) DecrementConnections()                                {}
func (NoopMetrics) SetConnectionCount(count int)                         {}
func (NoopMetrics) IncrementReplacedSessions()                           {}
func (NoopMetrics) IncrementMessageCount(msgType string)                 {}
func (NoopMetrics) RecordMessageLatency(msgType string, d time.Duration) {}
func (NoopMetrics) IncrementMessageErrors(msgType string)                {}
func (NoopMetrics) SetRoomCount(count int)                               {}
func (NoopMetrics) RecordBroadcastLatency(d time.Duration)               {}
func (NoopMetrics) IncrementDroppedMessages()                            {}
func (NoopMetrics) IncrementReadErrors()                                 {}
func (NoopMetrics) IncrementWriteErrors()                                {}
func (NoopMetrics) IncrementInvalidMessages()                            {}
