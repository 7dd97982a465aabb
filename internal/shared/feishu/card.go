package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SendCard 向群聊发送消息卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := map[string]interface{}{
		"receive_id": id,
		"msg_type":   "interactive",
		"content":    string(cardBytes),
	}

	path := fmt.Sprintf("/open-apis/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.doRequest(ctx, "POST", path, reqBody, &resp); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}

	return nil
}

// =============================================================================
// 预设卡片模板
// =============================================================================

// ShortageItem 缺料卡片中的一行
type ShortageItem struct {
	WorkOrder  string
	Customer   string
	PartType   string
	PartNumber string
	Start      string
	Shortfall  int
}

// maxCardRows 卡片内最多列出的行数
const maxCardRows = 15

// NewShortageAlertCard 缺料预警卡片
// total: 缺料行总数；items 超出 maxCardRows 时截断
func NewShortageAlertCard(items []ShortageItem, total int, zeroStock []string, link string) InteractiveCard {
	var b strings.Builder
	for i, it := range items {
		if i >= maxCardRows {
			fmt.Fprintf(&b, "… 另有 %d 行\n", len(items)-maxCardRows)
			break
		}
		start := it.Start
		if start == "" {
			start = "-"
		}
		fmt.Fprintf(&b, "- %s %s | %s %s | 缺 **%d** | 开工 %s\n",
			it.WorkOrder, it.Customer, it.PartType, it.PartNumber, it.Shortfall, start)
	}
	if b.Len() == 0 {
		b.WriteString("目前没有缺料")
	}

	template := "green"
	if total > 0 {
		template = "red"
	}

	elements := []CardElement{
		{
			Tag: "div",
			Fields: []CardField{
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**缺料行数**\n%d", total)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**零库存机型**\n%d", len(zeroStock))}},
			},
		},
		{Tag: "hr"},
		{Tag: "markdown", Content: b.String()},
	}

	if len(zeroStock) > 0 {
		names := zeroStock
		if len(names) > maxCardRows {
			names = append(append([]string(nil), names[:maxCardRows]...), "…")
		}
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**零库存机型**\n%s", strings.Join(names, "、"))},
			},
		)
	}

	if link != "" {
		elements = append(elements, CardElement{
			Tag: "action",
			Actions: []CardAction{
				{Tag: "button", Text: CardText{Tag: "plain_text", Content: "查看缺料清单"}, Type: "primary", URL: link},
			},
		})
	}

	elements = append(elements, CardElement{
		Tag: "note",
		Elements: []CardElement{
			{Tag: "plain_text", Content: "依工单生产开始日期排序，最终缺料 = 需求 - 已领 - 库存"},
		},
	})

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "⚠️ 铸件缺料预警"},
			Template: template,
		},
		Elements: elements,
	}
}
