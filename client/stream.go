package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sales_dashboard/models"
)

// ErrStreamClosed 服务端结束了推送连接
var ErrStreamClosed = errors.New("推送连接已关闭")

// maxFrameSize 单条推送消息的上限
const maxFrameSize = 8 << 20

// frameSection 推送消息中的一个实体
type frameSection struct {
	Entity  models.EntityType    `json:"entity"`
	Records json.RawMessage      `json:"records"`
	Error   *models.PartialError `json:"error"`
}

// Stream 建立推送连接，每收到一条快照调用一次onSnapshot
// 连接正常结束返回ErrStreamClosed，ctx取消时返回ctx.Err()
func (c *HTTPClient) Stream(ctx context.Context, p Params, onSnapshot func(*Dashboard)) error {
	req, err := c.newRequest(ctx, "/api/stream", c.query(p))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var env envelope
		message := string(bytes.TrimSpace(payload))
		if json.Unmarshal(payload, &env) == nil && env.Error != "" {
			message = env.Error
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: message}
	}

	err = readEvents(resp.Body, func(data []byte) error {
		d, err := decodeFrame(data)
		if err != nil {
			return err
		}
		onSnapshot(d)
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return ErrStreamClosed
	}
	return err
}

// readEvents 按text/event-stream格式读取消息
// 多行data拼接为一条消息，注释行和其它字段被忽略，空行表示消息结束
func readEvents(r io.Reader, fn func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var buf bytes.Buffer
	flush := func() error {
		if buf.Len() == 0 {
			return nil
		}
		data := append([]byte(nil), buf.Bytes()...)
		buf.Reset()
		return fn(data)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if err := flush(); err != nil {
				return err
			}
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("data:")):
			value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// decodeFrame 解码一条快照消息
func decodeFrame(data []byte) (*Dashboard, error) {
	var sections []frameSection
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("解码推送消息失败: %w", err)
	}
	d := &Dashboard{}
	for _, sec := range sections {
		if sec.Error != nil {
			d.fail(*sec.Error)
		}
		if len(sec.Records) == 0 {
			continue
		}
		if err := d.fill(sec.Entity, sec.Records); err != nil {
			return nil, err
		}
	}
	return d, nil
}
