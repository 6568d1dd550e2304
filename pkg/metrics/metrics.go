// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// harborNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	harborNamespace = "chatharbor"

	// 以下为当前使用的通用标签名。
	eventKindLabelName  = "event_kind"
	commandLabelName    = "command"
	resultLabelName     = "result"
	disconnectLabelName = "reason"
)

var (
	// dispatchBuckets 为事件分发耗时直方图的桶划分，单位为秒。
	dispatchBuckets = prometheus.ExponentialBuckets(0.0001, 2, 16)

	OnlineSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: harborNamespace,
			Name:      "online_sessions",
			Help:      "number of authenticated online sessions",
		})

	AcceptedConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "accepted_connections_total",
			Help:      "total accepted TLS connections",
		})

	RejectedConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "rejected_connections_total",
			Help:      "connections rejected before reaching active state",
		}, []string{disconnectLabelName})

	EventsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "events_triggered_total",
			Help:      "events triggered on the bus by kind",
		}, []string{eventKindLabelName})

	EventsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "events_cancelled_total",
			Help:      "events cancelled mid-dispatch by kind",
		}, []string{eventKindLabelName})

	EventDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: harborNamespace,
			Name:      "event_dispatch_seconds",
			Help:      "synchronous dispatch latency per trigger call",
			Buckets:   dispatchBuckets,
		}, []string{eventKindLabelName})

	CommandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "commands_dispatched_total",
			Help:      "slash commands dispatched by name and result",
		}, []string{commandLabelName, resultLabelName})

	ChatMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: harborNamespace,
			Name:      "chat_messages_total",
			Help:      "chat lines accepted into the event bus",
		})

	metricRegisterer prometheus.Registerer
)

// 命令结果标签的取值。
const (
	CommandResultOK       = "ok"
	CommandResultUnknown  = "unknown"
	CommandResultDenied   = "denied"
	CommandResultCooldown = "cooldown"
	CommandResultFailed   = "failed"
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(OnlineSessions)
	r.MustRegister(AcceptedConnections)
	r.MustRegister(RejectedConnections)
	r.MustRegister(EventsTriggered)
	r.MustRegister(EventsCancelled)
	r.MustRegister(EventDispatchDuration)
	r.MustRegister(CommandsDispatched)
	r.MustRegister(ChatMessages)
	metricRegisterer = r
}
