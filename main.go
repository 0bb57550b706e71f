package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zapcore"

	"lanarena/client"
	"lanarena/logging"
	"lanarena/protocol"
	"lanarena/server"
	"lanarena/ui"
)

// LAN Arena 入口：play 发现房间并进入游戏，discover 只列出房间，serve 启动本地房间
func main() {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command().Run(ctx, os.Args); err != nil {
		logging.Log.Errorw("exit", "error", err)
		logging.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Sync()
}

func command() *cli.Command {
	return &cli.Command{
		Name:           "lanarena",
		Usage:          "LAN multiplayer arena: discover rooms, play, or host one",
		DefaultCommand: "play",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-file",
				Value:   "lanarena.log",
				Usage:   "rolling log file (play always logs here, the terminal belongs to the game)",
				Sources: cli.EnvVars("LANARENA_LOG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("LANARENA_DEBUG"),
			},
		},
		Commands: []*cli.Command{playCommand(), discoverCommand(), serveCommand()},
	}
}

// discoveryFlags play 与 discover 共用
func discoveryFlags() []cli.Flag {
	def := client.DefaultDiscoveryConfig()
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "discovery-timeout",
			Value:   def.Timeout,
			Usage:   "how long to wait for room replies",
			Sources: cli.EnvVars("LANARENA_DISCOVERY_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "broadcast",
			Value:   def.BroadcastAddr,
			Usage:   "address the discovery probe is sent to",
			Sources: cli.EnvVars("LANARENA_BROADCAST"),
		},
		&cli.IntFlag{
			Name:    "discovery-port",
			Value:   protocol.DiscoveryPort,
			Sources: cli.EnvVars("LANARENA_DISCOVERY_PORT"),
		},
	}
}

func discoveryConfig(cmd *cli.Command) client.DiscoveryConfig {
	cfg := client.DefaultDiscoveryConfig()
	cfg.Timeout = cmd.Duration("discovery-timeout")
	cfg.BroadcastAddr = cmd.String("broadcast")
	cfg.Port = int(cmd.Int("discovery-port"))
	cfg.Logger = logging.Named("discovery")
	return cfg
}

// setupLogging play 必须写文件；其他命令未指定 --log-file 时写到 stderr
func setupLogging(cmd *cli.Command, toFile bool) error {
	level := zapcore.InfoLevel
	if cmd.Bool("debug") {
		level = zapcore.DebugLevel
	}
	if toFile || cmd.IsSet("log-file") {
		return logging.Init(cmd.String("log-file"), level)
	}
	logging.InitConsole(level)
	return nil
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "list the rooms answering on the local network",
		Flags: discoveryFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setupLogging(cmd, false); err != nil {
				return err
			}
			rooms, err := client.Discover(ctx, discoveryConfig(cmd))
			if err != nil {
				return err
			}
			rooms = uniqueRooms(rooms)
			if len(rooms) == 0 {
				fmt.Println("no rooms found")
				return nil
			}
			for _, r := range rooms {
				fmt.Printf("%s\t%s\n", r.RoomCode, r.Host)
			}
			return nil
		},
	}
}

func playCommand() *cli.Command {
	flags := append(discoveryFlags(),
		&cli.StringFlag{
			Name:    "host",
			Usage:   "connect to this host directly and skip discovery",
			Sources: cli.EnvVars("LANARENA_HOST"),
		},
		&cli.StringFlag{
			Name:    "room",
			Usage:   "join the room with this code instead of the first one found",
			Sources: cli.EnvVars("LANARENA_ROOM"),
		},
		&cli.IntFlag{
			Name:    "game-port",
			Value:   protocol.GamePort,
			Sources: cli.EnvVars("LANARENA_GAME_PORT"),
		},
		&cli.StringFlag{
			Name:    "transport",
			Value:   "tcp",
			Usage:   "tcp or kcp",
			Sources: cli.EnvVars("LANARENA_TRANSPORT"),
		},
		&cli.IntFlag{
			Name:    "fps",
			Value:   ui.DefaultFPS,
			Sources: cli.EnvVars("LANARENA_FPS"),
		},
		&cli.IntFlag{
			Name:    "speed",
			Value:   ui.DefaultSpeed,
			Usage:   "velocity sent per axis while a key is held",
			Sources: cli.EnvVars("LANARENA_SPEED"),
		},
	)

	return &cli.Command{
		Name:   "play",
		Usage:  "discover a room, connect and play (default)",
		Flags:  flags,
		Action: play,
	}
}

func play(ctx context.Context, cmd *cli.Command) error {
	if err := setupLogging(cmd, true); err != nil {
		return err
	}
	log := logging.Named("play")

	room, err := pickRoom(ctx, cmd)
	if err != nil {
		return err
	}

	dialer, err := client.DialerFor(cmd.String("transport"))
	if err != nil {
		return err
	}
	scfg := client.DefaultSessionConfig()
	scfg.GamePort = int(cmd.Int("game-port"))
	scfg.Dialer = dialer

	sess, err := client.Dial(ctx, room.Host, scfg)
	if err != nil {
		return err
	}
	log.Infow("joined room", "room", room.RoomCode, "host", room.Host)

	screen, err := tcell.NewScreen()
	if err != nil {
		sess.Close()
		return err
	}
	if err := screen.Init(); err != nil {
		sess.Close()
		return err
	}
	defer screen.Fini()

	game := &ui.Game{
		Screen:  screen,
		Session: sess,
		Room:    room.RoomCode,
		Speed:   int(cmd.Int("speed")),
		FPS:     int(cmd.Int("fps")),
		Reconnect: func(ctx context.Context) (ui.Session, error) {
			s, err := client.Dial(ctx, room.Host, scfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
	return game.Run(ctx)
}

// pickRoom --host 跳过发现；否则按 --room 选择，未指定时取第一个
func pickRoom(ctx context.Context, cmd *cli.Command) (protocol.RoomDescriptor, error) {
	if host := cmd.String("host"); host != "" {
		return protocol.RoomDescriptor{Host: host, RoomCode: cmd.String("room")}, nil
	}

	rooms, err := client.Discover(ctx, discoveryConfig(cmd))
	if err != nil {
		return protocol.RoomDescriptor{}, err
	}
	rooms = uniqueRooms(rooms)
	if len(rooms) == 0 {
		return protocol.RoomDescriptor{}, errors.New("no rooms found")
	}
	code := cmd.String("room")
	if code == "" {
		return rooms[0], nil
	}
	for _, r := range rooms {
		if r.RoomCode == code {
			return r, nil
		}
	}
	return protocol.RoomDescriptor{}, fmt.Errorf("room %q not found among %d rooms", code, len(rooms))
}

// uniqueRooms 每次探测都会收到同一房间的应答，按 (host, room_code) 去重并保持到达顺序；
// host 为通配地址的应答无法拨号，丢弃
func uniqueRooms(rooms []protocol.RoomDescriptor) []protocol.RoomDescriptor {
	seen := make(map[protocol.RoomDescriptor]bool, len(rooms))
	out := make([]protocol.RoomDescriptor, 0, len(rooms))
	for _, r := range rooms {
		if protocol.IsUnspecifiedHost(r.Host) {
			logging.Log.Warnw("skipping room with unspecified host", "room_code", r.RoomCode, "host", r.Host)
			continue
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func serveCommand() *cli.Command {
	def := server.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "host a room on this machine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "room",
				Usage:   "room code (random when empty)",
				Sources: cli.EnvVars("LANARENA_ROOM"),
			},
			&cli.StringFlag{
				Name:    "game-addr",
				Value:   def.GameAddr,
				Sources: cli.EnvVars("LANARENA_GAME_ADDR"),
			},
			&cli.StringFlag{
				Name:    "discovery-addr",
				Value:   def.DiscoveryAddr,
				Sources: cli.EnvVars("LANARENA_DISCOVERY_ADDR"),
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Value:   ":8080",
				Usage:   "spectator, admin and metrics endpoints; empty disables",
				Sources: cli.EnvVars("LANARENA_HTTP_ADDR"),
			},
			&cli.StringFlag{
				Name:    "advertise-host",
				Usage:   "host put in discovery replies (first LAN address when empty)",
				Sources: cli.EnvVars("LANARENA_ADVERTISE_HOST"),
			},
			&cli.StringFlag{
				Name:    "transport",
				Value:   def.Transport,
				Usage:   "tcp or kcp",
				Sources: cli.EnvVars("LANARENA_TRANSPORT"),
			},
			&cli.IntFlag{
				Name:    "tick-rate",
				Value:   server.DefaultTicksPerSecond,
				Sources: cli.EnvVars("LANARENA_TICK_RATE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setupLogging(cmd, false); err != nil {
				return err
			}

			cfg := server.DefaultConfig()
			cfg.RoomCode = cmd.String("room")
			cfg.GameAddr = cmd.String("game-addr")
			cfg.DiscoveryAddr = cmd.String("discovery-addr")
			cfg.HTTPAddr = cmd.String("http-addr")
			cfg.AdvertiseHost = cmd.String("advertise-host")
			cfg.Transport = cmd.String("transport")
			cfg.TickRate = int(cmd.Int("tick-rate"))
			cfg.Logger = logging.Named("server")

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("room %s listening on %s\n", srv.Descriptor().RoomCode, srv.GameAddr())

			start := time.Now()
			err = srv.Run(ctx)
			logging.Log.Infow("room server stopped", "uptime", time.Since(start).Round(time.Second))
			return err
		},
	}
}
