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
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/pkg/log"
)

var (
	ProcessCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: harborNamespace,
			Name:      "process_cpu_percent",
			Help:      "cpu usage percent of the server process",
		})

	ProcessResidentMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: harborNamespace,
			Name:      "process_resident_memory_bytes",
			Help:      "resident memory of the server process",
		})
)

// RegisterProcessMetrics 注册进程级指标。
func RegisterProcessMetrics(r prometheus.Registerer) {
	r.MustRegister(ProcessCPUPercent)
	r.MustRegister(ProcessResidentMemoryBytes)
}

// StartProcessCollector 周期性采集进程 CPU 与内存占用，直到 ctx 取消。
// 采集失败只记录日志，不会中断采集循环。
func StartProcessCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process metrics collector disabled", zap.Error(err))
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if percent, err := proc.CPUPercent(); err == nil {
					ProcessCPUPercent.Set(percent)
				}
				if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
					ProcessResidentMemoryBytes.Set(float64(mem.RSS))
				}
			}
		}
	}()
}
