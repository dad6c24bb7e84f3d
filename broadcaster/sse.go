package broadcaster

import (
	"bufio"
	"encoding/json"
	"fmt"

	"sales_dashboard/services"
)

// EncodeFrame 把快照编码为一条text/event-stream消息
// data后是按请求顺序排列的 [{"entity":..,"records":[..],"error":..}] 数组
func EncodeFrame(snap *services.Snapshot) ([]byte, error) {
	sections := snap.Sections
	if sections == nil {
		sections = []services.Section{}
	}
	payload, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("编码快照失败: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// WriteSnapshot 写出一条快照消息并立即刷新
// 刷新失败说明客户端已断开
func WriteSnapshot(w *bufio.Writer, snap *services.Snapshot) error {
	frame, err := EncodeFrame(snap)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return w.Flush()
}

// WriteHeartbeat 写出注释行维持连接
func WriteHeartbeat(w *bufio.Writer) error {
	if _, err := w.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
