package websocket

import (
	"fmt"
	"sync"
	"time"
)

// State 连接状态
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// 合法的状态迁移，Closed为终态
var transitions = map[State][]State{
	Disconnected: {Connecting, Closed},
	Connecting:   {Connected, Reconnecting, Closed},
	Connected:    {Reconnecting, Closed},
	Reconnecting: {Connecting, Closed},
}

// Reconnector 重连状态机
//
// 重连延迟为 min(max, 2^retry * base)，每次调度后retry加一，进入Connected时清零
type Reconnector struct {
	mu    sync.Mutex
	state State
	retry int
	base  time.Duration
	max   time.Duration
}

// NewReconnector 创建重连状态机，初始为Disconnected
func NewReconnector(base, max time.Duration) *Reconnector {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Reconnector{state: Disconnected, base: base, max: max}
}

// State 当前状态
func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Retry 当前连续失败次数
func (r *Reconnector) Retry() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retry
}

// Transition 状态迁移，非法迁移返回错误且状态不变
func (r *Reconnector) Transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(to)
}

func (r *Reconnector) transition(to State) error {
	for _, allowed := range transitions[r.state] {
		if allowed == to {
			r.state = to
			if to == Connected {
				r.retry = 0
			}
			return nil
		}
	}
	return fmt.Errorf("非法的连接状态迁移: %s -> %s", r.state, to)
}

// ScheduleReconnect 进入Reconnecting并返回本次等待时长
func (r *Reconnector) ScheduleReconnect() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transition(Reconnecting); err != nil {
		return 0, err
	}

	delay := r.delay(r.retry)
	r.retry++
	return delay, nil
}

// delay 第retry次重连的等待时长
func (r *Reconnector) delay(retry int) time.Duration {
	// 2^30秒早已超过上限，直接返回避免溢出
	if retry >= 30 {
		return r.max
	}
	d := r.base << uint(retry)
	if d <= 0 || d > r.max {
		return r.max
	}
	return d
}
