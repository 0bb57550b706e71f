package client

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lanarena/logging"
	"lanarena/protocol"
)

// State 会话状态机：Disconnected → Connecting → Connected → Closed
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
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
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity 服务端在 welcome 中分配的身份，连接存续期间不变
type Identity struct {
	ID string
}

// Session 持有到一个房间的持久连接。
// 接收协程是玩家快照与身份的唯一写者；前台帧循环只读快照、只写输入。
// 快照整体替换后以原子指针发布，读者拿到的永远是完整的一帧。
type Session struct {
	cfg     SessionConfig
	log     *zap.SugaredLogger
	metrics SessionMetrics

	mu    sync.Mutex // 保护 conn、cause 与状态迁移
	conn  net.Conn
	cause error
	state atomic.Int32

	players  atomic.Pointer[[]protocol.PlayerState]
	identity atomic.Pointer[Identity]

	sendCh    chan []byte
	failures  atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New 创建一个处于 Disconnected 的会话
func New(cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = logging.Named("session")
	}
	return &Session{
		cfg:    cfg,
		log:    log,
		sendCh: make(chan []byte, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
}

// Dial 创建会话并连接到 host
func Dial(ctx context.Context, host string, cfg SessionConfig) (*Session, error) {
	s := New(cfg)
	if err := s.Connect(ctx, host); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect 建立到 (host, GamePort) 的连接并启动后台收发协程。
// host 已带端口时原样使用。失败时回到 Disconnected 并返回 *ConnectionError。
func (s *Session) Connect(ctx context.Context, host string) error {
	s.mu.Lock()
	switch s.State() {
	case Disconnected:
	case Closed:
		s.mu.Unlock()
		return ErrSessionClosed
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.setState(Connecting)
	s.mu.Unlock()

	addr := s.address(host)
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, err := s.cfg.Dialer.DialContext(dctx, addr)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.State() == Connecting {
			s.setState(Disconnected)
		}
		s.log.Infow("connect failed", "addr", addr, "error", err)
		return &ConnectionError{Addr: addr, Err: err}
	}

	// 拨号期间被 Close 了
	if s.State() != Connecting {
		_ = conn.Close()
		return ErrSessionClosed
	}

	s.conn = conn
	s.setState(Connected)
	s.wg.Add(2)
	go s.readPump(conn)
	go s.writePump(conn)

	s.log.Infow("connected", "addr", addr)
	return nil
}

func (s *Session) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.GamePort))
}

// State 当前状态
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// LatestState 最近一次发布的玩家快照副本；会话关闭后仍返回最后一帧
func (s *Session) LatestState() []protocol.PlayerState {
	p := s.players.Load()
	if p == nil {
		return nil
	}
	return slices.Clone(*p)
}

// Identity 尚未收到 welcome 时 ok 为 false
func (s *Session) Identity() (Identity, bool) {
	id := s.identity.Load()
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

// Done 会话进入 Closed 时关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err 关闭原因；调用方主动 Close 时为 nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Metrics 运行指标
func (s *Session) Metrics() *SessionMetrics {
	return &s.metrics
}

// SendInput 把一帧输入放入发送队列，从不阻塞。
// 返回 ErrInputDropped 表示本帧丢弃、下一帧可重试；
// ErrSessionClosed / ErrNotConnected 表示应停止发送。
func (s *Session) SendInput(dx, dy int) error {
	switch s.State() {
	case Disconnected, Connecting:
		return ErrNotConnected
	case Closed:
		return ErrSessionClosed
	}

	line, err := protocol.EncodeInput(dx, dy)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.sendCh <- line:
		return nil
	default:
		// 为了实时性，丢弃本帧而不是阻塞帧循环
		s.metrics.IncInputsDropped()
		return ErrInputDropped
	}
}

// Close 关闭连接并等待后台协程退出，可重复调用
func (s *Session) Close() error {
	s.shutdown(nil)
	s.wg.Wait()
	return nil
}

// shutdown 迁移到 Closed；关闭底层连接以打断阻塞中的读
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.setState(Closed)
		conn := s.conn
		close(s.done)
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if cause != nil {
			s.log.Warnw("session closed", "error", cause, "metrics", s.metrics.Snapshot())
		} else {
			s.log.Infow("session closed", "metrics", s.metrics.Snapshot())
		}
	})
}

// readPump 独立协程：读 → 分帧 → 解码 → 发布
func (s *Session) readPump(conn net.Conn) {
	defer s.wg.Done()

	framer := protocol.NewFramer(s.cfg.MaxLineSize)
	buf := make([]byte, s.cfg.ReadBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.metrics.AddBytesRead(n)
			lines, ferr := framer.Feed(buf[:n])
			for _, line := range lines {
				s.handleLine(line)
			}
			if ferr != nil {
				s.shutdown(ferr)
				return
			}
		}
		if err != nil {
			s.shutdown(s.readError(err))
			return
		}
	}
}

func (s *Session) readError(err error) error {
	select {
	case <-s.done:
		// Close 关闭了连接，读错误是预期的
		return nil
	default:
	}
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	return &IOError{Op: "read", Err: err}
}

func (s *Session) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}

	msg, err := protocol.Decode(line)
	if err != nil {
		// 单行损坏不影响后续状态，丢弃并继续
		s.metrics.IncMalformed()
		s.log.Warnw("dropping malformed message", "error", err, "line", truncate(line, 128))
		return
	}
	s.metrics.IncDecoded()

	switch m := msg.(type) {
	case protocol.Welcome:
		if !s.identity.CompareAndSwap(nil, &Identity{ID: m.ID}) {
			cur, _ := s.Identity()
			s.log.Warnw("ignoring repeated welcome", "id", m.ID, "current", cur.ID)
			return
		}
		s.log.Infow("identity assigned", "id", m.ID)
	case protocol.State:
		players := m.Players
		s.players.Store(&players)
		s.metrics.IncStatesApplied()
	default:
		s.metrics.IncUnknown()
		s.log.Debugw("ignoring unknown message", "type", msg.MessageType())
	}
}

// writePump 独立协程，负责从 send 队列写出；写失败吞掉，连续失败才关闭会话
func (s *Session) writePump(conn net.Conn) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case line := <-s.sendCh:
			if s.cfg.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			}
			if _, err := conn.Write(line); err != nil {
				s.metrics.IncSendFailures()
				n := s.failures.Add(1)
				s.log.Debugw("input write failed", "error", err, "consecutive", n)
				if s.cfg.MaxSendFailures > 0 && int(n) >= s.cfg.MaxSendFailures {
					s.shutdown(errors.Join(ErrSendFailed, &IOError{Op: "write", Err: err}))
					return
				}
				continue
			}
			s.failures.Store(0)
			s.metrics.IncInputsSent()
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
