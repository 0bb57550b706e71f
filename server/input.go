package server

// Input 客户端输入（每帧速度增量），由服务端在 Tick 中解释并驱动世界状态
type Input struct {
	PlayerID PlayerID
	DX       int
	DY       int
}
