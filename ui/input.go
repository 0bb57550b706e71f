package ui

import "github.com/gdamore/tcell/v2"

// Action 键盘事件在帧循环里的含义
type Action int

const (
	ActionNone Action = iota
	ActionMove
	ActionQuit
	ActionReconnect
)

// KeyIntent 把按键翻译成动作；方向键与 WASD 给出单轴的速度分量
func KeyIntent(ev *tcell.EventKey, speed int) (action Action, dx, dy int) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit, 0, 0
	case tcell.KeyUp:
		return ActionMove, 0, -speed
	case tcell.KeyDown:
		return ActionMove, 0, speed
	case tcell.KeyLeft:
		return ActionMove, -speed, 0
	case tcell.KeyRight:
		return ActionMove, speed, 0
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'w', 'W':
			return ActionMove, 0, -speed
		case 's', 'S':
			return ActionMove, 0, speed
		case 'a', 'A':
			return ActionMove, -speed, 0
		case 'd', 'D':
			return ActionMove, speed, 0
		case 'q', 'Q':
			return ActionQuit, 0, 0
		case 'r', 'R':
			return ActionReconnect, 0, 0
		}
	}
	return ActionNone, 0, 0
}

// Intent 一帧内累积的输入，每个轴以最后一次按键为准
type Intent struct {
	DX, DY int
}

func (in *Intent) Apply(dx, dy int) {
	if dx != 0 {
		in.DX = dx
	}
	if dy != 0 {
		in.DY = dy
	}
}
