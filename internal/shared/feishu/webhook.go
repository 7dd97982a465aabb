package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SendWebhookCard 通过群自定义机器人 webhook 发送卡片，不需要应用凭证
func (c *FeishuClient) SendWebhookCard(ctx context.Context, webhookURL string, card InteractiveCard) error {
	bodyBytes, err := json.Marshal(webhookMessage{MsgType: "interactive", Card: card})
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook返回HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result webhookResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应体失败: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("webhook错误[%d]: %s", result.Code, result.Msg)
	}
	if result.StatusCode != 0 {
		return fmt.Errorf("webhook错误[%d]: %s", result.StatusCode, result.StatusMsg)
	}
	return nil
}
