package ui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"lanarena/client"
	"lanarena/logging"
	"lanarena/protocol"
)

const (
	DefaultFPS   = 60
	DefaultSpeed = 5
)

// Session 帧循环对会话的全部依赖：读快照与身份，写输入
type Session interface {
	LatestState() []protocol.PlayerState
	Identity() (client.Identity, bool)
	State() client.State
	SendInput(dx, dy int) error
	Err() error
	Close() error
}

// Game 固定帧率的渲染/输入循环，运行在前台协程
type Game struct {
	Screen  tcell.Screen
	Session Session
	Room    string

	Speed       int
	FPS         int
	WorldWidth  float64
	WorldHeight float64

	// Reconnect 会话关闭后按 r 时调用，返回新的会话；为 nil 时不支持重连
	Reconnect func(ctx context.Context) (Session, error)

	Logger *zap.SugaredLogger

	lastErr      error
	reconnecting bool
	reconnected  chan reconnectResult
	stop         chan struct{}
}

// reconnectResult 后台拨号的结果，交回帧循环安装
type reconnectResult struct {
	session Session
	err     error
}

// Run 运行到退出键或 ctx 结束，返回前关闭当前会话。Screen 的 Init/Fini 由调用方负责。
func (g *Game) Run(ctx context.Context) error {
	g.defaults()

	events := make(chan tcell.Event, 64)
	stop := make(chan struct{})
	g.stop = stop
	defer func() {
		close(stop)
		// 唤醒阻塞在 PollEvent 上的协程
		_ = g.Screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()
	go g.pollEvents(events, stop)

	ticker := time.NewTicker(time.Second / time.Duration(g.FPS))
	defer ticker.Stop()

	var intent Intent
	for {
		select {
		case <-ctx.Done():
			g.closeSession()
			return nil
		case ev := <-events:
			if quit := g.handleEvent(ctx, ev, &intent); quit {
				g.closeSession()
				return nil
			}
		case res := <-g.reconnected:
			g.finishReconnect(res)
		case <-ticker.C:
			g.Step(intent)
			intent = Intent{}
		}
	}
}

func (g *Game) defaults() {
	if g.FPS <= 0 {
		g.FPS = DefaultFPS
	}
	if g.Speed <= 0 {
		g.Speed = DefaultSpeed
	}
	if g.WorldWidth <= 0 || g.WorldHeight <= 0 {
		g.WorldWidth, g.WorldHeight = 1000, 700
	}
	if g.Logger == nil {
		g.Logger = logging.Named("ui")
	}
	if g.reconnected == nil {
		g.reconnected = make(chan reconnectResult)
	}
}

func (g *Game) pollEvents(events chan<- tcell.Event, stop <-chan struct{}) {
	for {
		ev := g.Screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case events <- ev:
		case <-stop:
			return
		}
	}
}

// handleEvent 返回 true 表示退出
func (g *Game) handleEvent(ctx context.Context, ev tcell.Event, intent *Intent) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		g.Screen.Sync()
	case *tcell.EventKey:
		action, dx, dy := KeyIntent(ev, g.Speed)
		switch action {
		case ActionQuit:
			return true
		case ActionMove:
			intent.Apply(dx, dy)
		case ActionReconnect:
			g.startReconnect(ctx)
		}
	}
	return false
}

// Step 一帧：发送本帧输入，读一次快照，画出来
func (g *Game) Step(intent Intent) {
	if err := g.Session.SendInput(intent.DX, intent.DY); err != nil && !client.IsTransient(err) {
		if !errors.Is(err, client.ErrSessionClosed) && !errors.Is(err, client.ErrNotConnected) {
			g.Logger.Debugw("send input failed", "error", err)
		}
	}

	f := Frame{
		Players: g.Session.LatestState(),
		State:   g.Session.State(),
		Room:    g.Room,
		Err:     g.lastErr,

		Reconnecting: g.reconnecting,
	}
	if id, ok := g.Session.Identity(); ok {
		f.Self = id.ID
	}
	if f.Err == nil && f.State == client.Closed {
		f.Err = g.Session.Err()
	}

	Renderer{WorldWidth: g.WorldWidth, WorldHeight: g.WorldHeight}.Render(g.Screen, f)
}

// startReconnect 只在会话已关闭时生效；拨号在后台进行，帧循环照常渲染
func (g *Game) startReconnect(ctx context.Context) {
	if g.Reconnect == nil || g.reconnecting || g.Session.State() != client.Closed {
		return
	}
	g.reconnecting = true
	g.lastErr = nil
	dial, results, stop := g.Reconnect, g.reconnected, g.stop

	go func() {
		s, err := dial(ctx)
		select {
		case results <- reconnectResult{session: s, err: err}:
		case <-stop:
			// 帧循环已退出，新会话无人接管
			if s != nil {
				_ = s.Close()
			}
		}
	}()
}

// finishReconnect 失败时保留旧会话以便再次尝试
func (g *Game) finishReconnect(res reconnectResult) {
	g.reconnecting = false
	if res.err != nil {
		g.lastErr = res.err
		g.Logger.Warnw("reconnect failed", "error", res.err)
		return
	}
	_ = g.Session.Close()
	g.Session = res.session
	g.Logger.Infow("reconnected", "room", g.Room)
}

func (g *Game) closeSession() {
	if err := g.Session.Close(); err != nil {
		g.Logger.Debugw("close session", "error", err)
	}
}
