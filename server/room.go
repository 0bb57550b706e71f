package server

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"lanarena/protocol"
)

// Settings 可热更新的房间规则
type Settings struct {
	Step             float64 `json:"step"`             // 输入增量的缩放系数
	MaxInputsPerTick int     `json:"maxInputsPerTick"` // 每个玩家每 Tick 最多接受的输入数，0 不限
	SimulateDropProb float64 `json:"simulateDropProb"` // 模拟丢包概率 [0,1]
}

// DefaultSettings 每个输入按原样移动，每帧最多 4 个输入
func DefaultSettings() Settings {
	return Settings{Step: 1, MaxInputsPerTick: 4}
}

// Room 房间世界：权威状态维护在内存，单线程 Tick 推进。
// Players 与 spectators 只在 Tick 协程中访问，其他协程通过通道提交请求。
type Room struct {
	Code string

	Players    map[PlayerID]*Player
	spectators map[Conn]bool

	inputChan      chan Input
	joinChan       chan *Player
	leaveChan      chan PlayerID
	spectateChan   chan Conn
	unspectateChan chan Conn
	done           chan struct{}

	// closeMu 保证 shutdown 之后不会再有连接进入 joinChan/spectateChan
	closeMu sync.Mutex
	closed  bool

	// 世界边界
	width  float64
	height float64

	mu       sync.RWMutex // 保护 settings，admin 接口会并发修改
	settings Settings

	rng     *rand.Rand
	metrics *RoomMetrics
	tickSeq atomic.Int64
	log     *zap.SugaredLogger
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(code string, width, height float64, settings Settings, log *zap.SugaredLogger) *Room {
	return &Room{
		Code:           code,
		Players:        make(map[PlayerID]*Player),
		spectators:     make(map[Conn]bool),
		inputChan:      make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		joinChan:       make(chan *Player, 64),
		leaveChan:      make(chan PlayerID, 64),
		spectateChan:   make(chan Conn, 16),
		unspectateChan: make(chan Conn, 16),
		done:           make(chan struct{}),
		width:          width,
		height:         height,
		settings:       settings,
		rng:            rand.New(rand.NewSource(rand.Int63())),
		metrics:        &RoomMetrics{},
		log:            log,
	}
}

// Metrics 运行指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// TickSeq 已执行的 Tick 数
func (r *Room) TickSeq() int64 { return r.tickSeq.Load() }

// Settings 当前规则副本
func (r *Room) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings 原子地修改规则
func (r *Room) UpdateSettings(fn func(*Settings)) Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.settings)
	return r.settings
}

// RequestJoin 请求在 Tick 线程中加入玩家；出生在世界中心。
// 房间已停止或加入队列已满时直接断开连接。
func (r *Room) RequestJoin(id PlayerID, conn Conn) {
	p := &Player{ID: id, X: r.width / 2, Y: r.height / 2, Conn: conn}
	if !r.enqueue(func() bool {
		select {
		case r.joinChan <- p:
			return true
		default:
			return false
		}
	}) {
		conn.Close()
	}
}

// enqueue 在未关闭时执行非阻塞入队；与 shutdown 互斥
func (r *Room) enqueue(push func() bool) bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return false
	}
	return push()
}

// RequestLeave 请求在 Tick 线程中移除玩家，避免并发改动房间状态
func (r *Room) RequestLeave(pid PlayerID) {
	select {
	case r.leaveChan <- pid:
	case <-r.done:
	}
}

// Spectate 观战者只接收广播，不参与世界
func (r *Room) Spectate(c Conn) {
	if !r.enqueue(func() bool {
		select {
		case r.spectateChan <- c:
			return true
		default:
			return false
		}
	}) {
		c.Close()
	}
}

func (r *Room) Unspectate(c Conn) {
	select {
	case r.unspectateChan <- c:
	case <-r.done:
	}
}

// OnInput 入站输入（不立即改变位置），仅记录意图，等下一次 Tick 处理
func (r *Room) OnInput(in Input) {
	// 不阻塞：输入拥塞时丢弃，保证 Tick 准时
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// BeginTick 同一 Tick 时间线：重置输入计数等帧内状态
func (r *Room) BeginTick() {
	for _, p := range r.Players {
		p.inputsThisTick = 0
	}
}

// ProcessInputs 处理成员变动与当前帧的所有输入（非阻塞 drain）
func (r *Room) ProcessInputs() {
	settings := r.Settings()
	for {
		select {
		case p := <-r.joinChan:
			r.joinPlayer(p)
		case pid := <-r.leaveChan:
			r.leavePlayer(pid)
		case c := <-r.spectateChan:
			r.spectators[c] = true
		case c := <-r.unspectateChan:
			if r.spectators[c] {
				delete(r.spectators, c)
				c.Close()
			}
		case in := <-r.inputChan:
			p, ok := r.Players[in.PlayerID]
			if !ok {
				continue
			}
			if settings.MaxInputsPerTick > 0 && p.inputsThisTick >= settings.MaxInputsPerTick {
				r.metrics.IncRateLimited()
				continue
			}
			if settings.SimulateDropProb > 0 && r.rng.Float64() < settings.SimulateDropProb {
				r.metrics.IncDropsSimulated()
				continue
			}
			p.inputsThisTick++
			r.metrics.IncAccepted()
			r.applyMove(p, in, settings.Step)
		default:
			return
		}
	}
}

func (r *Room) joinPlayer(p *Player) {
	if old, ok := r.Players[p.ID]; ok && old.Conn != nil {
		old.Conn.Close()
	}
	r.Players[p.ID] = p
	r.metrics.IncJoined()
	r.log.Infow("player joined", "room", r.Code, "player", p.ID, "players", len(r.Players))
}

// leavePlayer 将玩家移出房间
func (r *Room) leavePlayer(id PlayerID) {
	if p, ok := r.Players[id]; ok {
		if p.Conn != nil {
			p.Conn.Close()
		}
		delete(r.Players, id)
		r.metrics.IncLeft()
		r.log.Infow("player left", "room", r.Code, "player", id, "players", len(r.Players))
	}
}

// PlayerStates 当前世界快照，按 id 排序保证广播稳定
func (r *Room) PlayerStates() []protocol.PlayerState {
	snapshot := make([]protocol.PlayerState, 0, len(r.Players))
	for _, p := range r.Players {
		snapshot = append(snapshot, p.State())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Broadcast 将当前世界状态广播给所有玩家与观战者（一行 JSON）
func (r *Room) Broadcast() {
	b, err := protocol.EncodeState(r.PlayerStates())
	if err != nil {
		r.log.Errorw("encode state failed", "error", err)
		return
	}
	for _, p := range r.Players {
		if p.Conn != nil {
			p.Conn.Enqueue(b)
		}
	}
	for c := range r.spectators {
		c.Enqueue(b)
	}
}

// applyMove 按增量移动并进行越界裁剪
func (r *Room) applyMove(p *Player, in Input, step float64) {
	p.X += float64(in.DX) * step
	p.Y += float64(in.DY) * step
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X > r.width {
		p.X = r.width
	}
	if p.Y > r.height {
		p.Y = r.height
	}
}

// shutdown Tick 协程退出时断开所有连接，包括仍在队列中等待加入的
func (r *Room) shutdown() {
	r.closeMu.Lock()
	r.closed = true
	close(r.done)
	r.closeMu.Unlock()

drain:
	for {
		select {
		case p := <-r.joinChan:
			if p.Conn != nil {
				p.Conn.Close()
			}
		case c := <-r.spectateChan:
			c.Close()
		default:
			break drain
		}
	}

	for id, p := range r.Players {
		if p.Conn != nil {
			p.Conn.Close()
		}
		delete(r.Players, id)
	}
	for c := range r.spectators {
		c.Close()
		delete(r.spectators, c)
	}
}
