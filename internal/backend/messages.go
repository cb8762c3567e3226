package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/crm"
)

// MessageQuery selects a conversation's message page.
type MessageQuery struct {
	ContactID string
	Origin    string // optional origin number filter
	Platform  crm.Platform
}

// Messages returns the newest page of a conversation, newest first. Fetching
// marks the conversation as read on the server. When the primary route fails
// the raw chat collection is queried instead; when it returns nothing the
// omnichannel route is tried.
func (c *Client) Messages(ctx context.Context, mq MessageQuery) ([]crm.Message, error) {
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.clientMessages(ctx, u, mq)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("client-messages failed, falling back to chat collection",
			zap.String("contact_id", mq.ContactID), zap.Error(err))
		raw, err = c.chatCollection(ctx, u, mq)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
	}
	if len(raw) == 0 {
		raw = c.omnichannelMessages(ctx, mq)
	}

	out := make([]crm.Message, 0, len(raw))
	for _, r := range raw {
		m, err := c.parser.Message(r, mq.Platform)
		if err != nil || m.ID == "" {
			c.logger.Debug("skipping malformed message", zap.String("contact_id", mq.ContactID), zap.Error(err))
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = mq.ContactID
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) clientMessages(ctx context.Context, u User, mq MessageQuery) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("client_id", mq.ContactID)
	q.Set("mark_as_read", "true")
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	q.Set("$sort[createdAt]", "-1")
	if mq.Origin != "" {
		q.Set("phone_origin", mq.Origin)
	}

	var resp struct {
		Success  bool            `json:"success"`
		Data     json.RawMessage `json:"data"`
		Messages list            `json:"messages"`
	}
	path := "/client-messages/" + url.PathEscape(u.CompanyID) + "/" + url.PathEscape(u.ID)
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	if resp.Success && len(resp.Data) > 0 {
		var inner struct {
			Messages list `json:"messages"`
		}
		if err := json.Unmarshal(resp.Data, &inner); err != nil {
			return nil, fmt.Errorf("decode client-messages data: %w", err)
		}
		return inner.Messages, nil
	}
	return resp.Messages, nil
}

func (c *Client) chatCollection(ctx context.Context, u User, mq MessageQuery) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("client_id", mq.ContactID)
	q.Set("company_id", u.CompanyID)
	q.Set("$limit", strconv.Itoa(c.cfg.PageSize))
	q.Set("$sort[createdAt]", "-1")
	if mq.Origin != "" {
		q.Set("phone_origin", mq.Origin)
	}
	var items list
	if err := c.get(ctx, "/chat", q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) omnichannelMessages(ctx context.Context, mq MessageQuery) []json.RawMessage {
	q := url.Values{}
	if mq.Origin != "" {
		q.Set("phone_number", mq.Origin)
	}
	var items list
	if err := c.get(ctx, "/omnichannel/messages/"+url.PathEscape(mq.ContactID), q, &items); err != nil {
		c.logger.Debug("omnichannel messages failed", zap.String("contact_id", mq.ContactID), zap.Error(err))
		return nil
	}
	return items
}
