package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"lanarena/client"
	"lanarena/protocol"
)

const sidebarWidth = 22

var (
	styleBackground = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite)
	styleBorder     = styleBackground.Foreground(tcell.ColorGray)
	stylePlayer     = styleBackground.Foreground(tcell.ColorGreen)
	styleSelf       = styleBackground.Foreground(tcell.ColorYellow)
	styleOther      = styleBackground.Foreground(tcell.ColorSilver)
	styleHeader     = styleBackground.Foreground(tcell.ColorWhite).Bold(true)
	styleError      = styleBackground.Foreground(tcell.ColorRed)
)

// Frame 一帧要画的全部内容，由帧循环从会话读出
type Frame struct {
	Players []protocol.PlayerState
	Self    string // 尚未分配身份时为空
	State   client.State
	Room    string
	Err     error

	Reconnecting bool
}

// Renderer 把世界坐标缩放到终端格子里
type Renderer struct {
	WorldWidth  float64
	WorldHeight float64
}

// Render 清屏后画出游戏区、玩家侧栏与状态行
func (r Renderer) Render(s tcell.Screen, f Frame) {
	s.SetStyle(styleBackground)
	s.Clear()

	w, h := s.Size()
	playRight := w - sidebarWidth - 1
	playBottom := h - 2
	if playRight < 2 || playBottom < 2 {
		drawText(s, 0, 0, styleError, "Please make your terminal window larger!")
		s.Show()
		return
	}

	drawBox(s, 0, 0, playRight, playBottom, styleBorder)
	for _, p := range f.Players {
		col, row := r.cell(p, playRight-1, playBottom-1)
		sty := stylePlayer
		if p.ID == f.Self {
			sty = styleSelf
		}
		s.SetContent(col, row, '█', nil, sty)
	}

	r.drawSidebar(s, playRight+2, f)
	drawText(s, 0, h-1, styleBackground, statusLine(f))
	if f.Err != nil {
		drawText(s, len(statusLine(f))+2, h-1, styleError, f.Err.Error())
	}

	s.Show()
}

// cell 世界坐标 → 游戏区内部格子（边框内，含两端）
func (r Renderer) cell(p protocol.PlayerState, innerW, innerH int) (int, int) {
	col := 1 + scale(p.X, r.WorldWidth, innerW)
	row := 1 + scale(p.Y, r.WorldHeight, innerH)
	return col, row
}

func scale(v, world float64, cells int) int {
	if world <= 0 || cells <= 1 {
		return 0
	}
	n := int(v / world * float64(cells-1))
	return max(0, min(n, cells-1))
}

func (r Renderer) drawSidebar(s tcell.Screen, x int, f Frame) {
	drawText(s, x, 0, styleHeader, "Players")
	row := 2
	present := false
	for _, p := range f.Players {
		sty := styleOther
		if p.ID == f.Self {
			sty = styleSelf
			present = true
		}
		drawText(s, x, row, sty, p.ID)
		row++
	}
	if f.Self != "" && !present {
		// 侧栏只有 sidebarWidth-1 列，分两行写
		drawText(s, x, row+1, styleOther, fmt.Sprintf("(you: %s)", f.Self))
		drawText(s, x, row+2, styleOther, "not in room")
	}
}

func statusLine(f Frame) string {
	line := fmt.Sprintf("room %s | %s | %d players", f.Room, f.State, len(f.Players))
	switch {
	case f.Reconnecting:
		line += " | reconnecting..."
	case f.State == client.Closed:
		line += " | r: reconnect"
	}
	return line + " | q: quit"
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	col := x
	for _, r := range text {
		s.SetContent(col, y, r, nil, style)
		col++
	}
}

func drawBox(s tcell.Screen, x1, y1, x2, y2 int, style tcell.Style) {
	for row := y1 + 1; row < y2; row++ {
		s.SetContent(x1, row, '┃', nil, style)
		s.SetContent(x2, row, '┃', nil, style)
	}
	for col := x1 + 1; col < x2; col++ {
		s.SetContent(col, y1, '━', nil, style)
		s.SetContent(col, y2, '━', nil, style)
	}
	s.SetContent(x1, y1, '┏', nil, style)
	s.SetContent(x2, y1, '┓', nil, style)
	s.SetContent(x1, y2, '┗', nil, style)
	s.SetContent(x2, y2, '┛', nil, style)
}
