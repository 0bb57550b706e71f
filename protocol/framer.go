package protocol

import "bytes"

// Framer 把任意分块到达的字节流切分为完整的行。
// 不含分隔符的尾部数据保留到下一次 Feed。
type Framer struct {
	buf []byte
	max int
}

// NewFramer max <= 0 时使用 MaxLineSize
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = MaxLineSize
	}
	return &Framer{max: max}
}

// Feed 追加一个分块，返回其中所有完整的行（已去掉分隔符和行尾 '\r'）。
// 残留数据超过上限时返回 ErrFramingDesync，同时清空缓冲；此前切出的行仍然返回。
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	data := append(f.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(data, Delimiter)
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(data[:i], []byte{'\r'})
		lines = append(lines, append([]byte(nil), line...))
		data = data[i+1:]
	}

	// 把残留搬到缓冲头部，复用底层数组
	f.buf = append(f.buf[:0], data...)

	if len(f.buf) > f.max {
		f.buf = f.buf[:0]
		return lines, ErrFramingDesync
	}
	return lines, nil
}

// Pending 当前缓冲中尚未成行的字节数
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset 丢弃缓冲
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
