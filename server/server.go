package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lanarena/logging"
	"lanarena/protocol"
)

// Config 房间服务端配置
type Config struct {
	RoomCode      string  // 为空时随机生成
	GameAddr      string  // 游戏流监听地址
	DiscoveryAddr string  // UDP 发现监听地址
	HTTPAddr      string  // 为空则不启动 HTTP（观战、管理、指标）
	AdvertiseHost string  // 发现应答里的 host，为空时取本机局域网地址
	Transport     string  // tcp | kcp
	TickRate      int     // 每秒 Tick 数
	Width         float64 // 世界宽度
	Height        float64 // 世界高度
	Settings      Settings
	Logger        *zap.SugaredLogger
}

// DefaultConfig 与客户端默认端口一致
func DefaultConfig() Config {
	return Config{
		GameAddr:      fmt.Sprintf(":%d", protocol.GamePort),
		DiscoveryAddr: fmt.Sprintf(":%d", protocol.DiscoveryPort),
		Transport:     "tcp",
		TickRate:      DefaultTicksPerSecond,
		Width:         1000,
		Height:        700,
		Settings:      DefaultSettings(),
	}
}

// Server 单房间的局域网服务端：发现应答 + 游戏流 + HTTP
type Server struct {
	cfg  Config
	room *Room
	log  *zap.SugaredLogger

	gameLn      net.Listener
	discoveryPC net.PacketConn
	httpLn      net.Listener
	httpSrv     *http.Server
}

// NewRoomCode 随机房间码，6 位大写
func NewRoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// New 绑定所有监听端口；失败时已打开的端口会被关闭
func New(cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.RoomCode == "" {
		cfg.RoomCode = NewRoomCode()
	}
	if cfg.Transport == "" {
		cfg.Transport = def.Transport
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Settings == (Settings{}) {
		cfg.Settings = def.Settings
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Named("server")
	}

	s := &Server{
		cfg:  cfg,
		room: NewRoom(cfg.RoomCode, cfg.Width, cfg.Height, cfg.Settings, log.Named("room")),
		log:  log,
	}

	var err error
	switch cfg.Transport {
	case "tcp":
		s.gameLn, err = net.Listen("tcp", cfg.GameAddr)
	case "kcp":
		s.gameLn, err = kcp.Listen(cfg.GameAddr)
	default:
		err = fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("listen game: %w", err)
	}

	s.discoveryPC, err = net.ListenPacket("udp4", cfg.DiscoveryAddr)
	if err != nil {
		s.closeListeners()
		return nil, fmt.Errorf("listen discovery: %w", err)
	}

	if cfg.HTTPAddr != "" {
		s.httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("listen http: %w", err)
		}
		s.httpSrv = &http.Server{
			Handler:     s.Handler(),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		}
	}

	if s.cfg.AdvertiseHost == "" {
		if ip, err := LocalIP(); err == nil {
			s.cfg.AdvertiseHost = ip
		} else {
			// 没有局域网地址时只有本机可达
			s.cfg.AdvertiseHost = "127.0.0.1"
		}
	}
	return s, nil
}

// Handler 管理与观战接口
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSpectate)
	mux.HandleFunc("/admin/config", s.handleAdminConfig)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) Room() *Room { return s.room }

// Descriptor 发现应答内容
func (s *Server) Descriptor() protocol.RoomDescriptor {
	return protocol.RoomDescriptor{Host: s.cfg.AdvertiseHost, RoomCode: s.cfg.RoomCode}
}

func (s *Server) GameAddr() net.Addr { return s.gameLn.Addr() }
func (s *Server) DiscoveryAddr() net.Addr { return s.discoveryPC.LocalAddr() }

// HTTPAddr 未启用 HTTP 时为 nil
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Run 运行到 ctx 结束；任一组件失败都会让其余组件退出
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.log.Infow("room server started",
		"room", s.cfg.RoomCode,
		"transport", s.cfg.Transport,
		"game", s.GameAddr().String(),
		"discovery", s.DiscoveryAddr().String(),
		"advertise", s.cfg.AdvertiseHost)

	g.Go(func() error { return s.room.Run(gctx, s.cfg.TickRate) })
	g.Go(func() error {
		err := serveStream(s.gameLn, s.room, s.log.Named("stream"))
		if gctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) {
			// kcp 关闭监听时返回 ErrClosedPipe
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := serveDiscovery(s.discoveryPC, s.Descriptor(), s.log.Named("discovery"))
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	if s.httpSrv != nil {
		g.Go(func() error {
			s.log.Infow("http listening", "addr", s.httpLn.Addr().String())
			if err := s.httpSrv.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down...")
		if s.httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.httpSrv.Shutdown(sctx)
		}
		s.closeListeners()
		return nil
	})

	return g.Wait()
}

func (s *Server) closeListeners() {
	if s.gameLn != nil {
		_ = s.gameLn.Close()
	}
	if s.discoveryPC != nil {
		_ = s.discoveryPC.Close()
	}
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
}
