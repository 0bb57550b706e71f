package server

import (
	"context"
	"time"
)

const (
	// DefaultTicksPerSecond 世界推进频率（20 TPS）
	DefaultTicksPerSecond = 20
)

// Tick 执行一帧：处理输入 → 更新世界 → 广播结果
func (r *Room) Tick() {
	start := time.Now()
	r.BeginTick() // 同一 Tick 时间线：重置输入计数等帧内状态
	r.ProcessInputs()
	r.Broadcast()
	r.tickSeq.Add(1)
	r.metrics.AddTick(time.Since(start).Nanoseconds())
}

// Run 房间的 Tick 循环（单线程推进世界），ctx 结束时断开所有连接
func (r *Room) Run(ctx context.Context, tps int) error {
	if tps <= 0 {
		tps = DefaultTicksPerSecond
	}
	ticker := time.NewTicker(time.Second / time.Duration(tps))
	defer ticker.Stop()
	defer r.shutdown()

	r.log.Infow("room ticking", "room", r.Code, "tps", tps)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}
