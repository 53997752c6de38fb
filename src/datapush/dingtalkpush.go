package datapush

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"RentalInsight/src/processor"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// 钉钉 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// DingTalkRobot 群机器人推送，清洗完成后发送摘要
type DingTalkRobot struct {
	webhook  string
	secret   string // 加签密钥，为空时不加签
	client   *http.Client
	times    int
	interval time.Duration
	now      func() time.Time
}

func NewDingTalkRobot(webhook, secret string) *DingTalkRobot {
	return &DingTalkRobot{
		webhook:  webhook,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
		times:    RETRY_TIMES,
		interval: RETRY_INTERVAL,
		now:      time.Now,
	}
}

// Notify 发送清洗结果摘要，失败时按RETRY_TIMES重试
func (d *DingTalkRobot) Notify(ctx context.Context, res *processor.Result) error {
	title, text := formatSummary(res)
	return retry(ctx, func() error {
		return d.SendMarkdown(ctx, title, text)
	}, d.times, d.interval)
}

// SendMarkdown 发送markdown消息
func (d *DingTalkRobot) SendMarkdown(ctx context.Context, title, text string) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	target, err := d.signedURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉返回状态码%d: %s", resp.StatusCode, respBody)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("发送消息失败: %s", result.ErrMsg)
	}
	return nil
}

// signedURL 配置了secret时在webhook后追加timestamp和sign
func (d *DingTalkRobot) signedURL() (string, error) {
	if d.secret == "" {
		return d.webhook, nil
	}

	u, err := url.Parse(d.webhook)
	if err != nil {
		return "", fmt.Errorf("webhook地址无效: %w", err)
	}

	timestamp := d.now().UnixMilli()
	q := u.Query()
	q.Set("timestamp", fmt.Sprint(timestamp))
	q.Set("sign", sign(timestamp, d.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sign base64(HmacSHA256(timestamp+"\n"+secret))
func sign(timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d\n%s", timestamp, secret)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func formatSummary(res *processor.Result) (string, string) {
	r := res.Report
	title := "租金数据清洗完成"

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "- 输入: %s\n", filepath.Base(res.Input))
	fmt.Fprintf(&b, "- 输出: %s\n", filepath.Base(res.Output))
	if res.ExportXLSX != "" {
		fmt.Fprintf(&b, "- 导出: %s\n", filepath.Base(res.ExportXLSX))
	}
	fmt.Fprintf(&b, "- 清洗前: %d 行 %d 列\n", r.Before.Rows, r.Before.Cols)
	fmt.Fprintf(&b, "- 清洗后: %d 行 %d 列\n", r.After.Rows, r.After.Cols)
	fmt.Fprintf(&b, "- 缺失超过80%%删除: %d 行\n", r.RemovedByMissing())
	fmt.Fprintf(&b, "- 地区/州为空删除: %d 行\n", r.RemovedByIdentity())
	fmt.Fprintf(&b, "- 耗时: %v\n", r.Elapsed.Round(time.Millisecond))
	return title, b.String()
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
