package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/crm"
)

// hydrateWorkers bounds concurrent last-message lookups.
const hydrateWorkers = 8

type contactDTO struct {
	ID                text            `json:"_id"`
	Name              text            `json:"name"`
	ClientName        text            `json:"client_name"`
	Phone             text            `json:"phone"`
	Email             text            `json:"email"`
	InstagramID       text            `json:"instagram_id"`
	InstagramUsername text            `json:"instagram_username"`
	InstagramFullname text            `json:"instagram_fullname"`
	Image             text            `json:"image"`
	LinkImgProfile    text            `json:"linkImgProfile"`
	Platform          text            `json:"platform"`
	UnreadCount       int             `json:"unreadCount"`
	LastMessageID     text            `json:"lastMessageId"`
	LastMessage       json.RawMessage `json:"lastMessage"`
}

func (d contactDTO) contact() crm.Contact {
	c := crm.Contact{
		ID:                string(d.ID),
		Name:              first(d.Name, d.ClientName),
		Phone:             string(d.Phone),
		Email:             string(d.Email),
		InstagramID:       string(d.InstagramID),
		InstagramUsername: string(d.InstagramUsername),
		InstagramFullname: string(d.InstagramFullname),
		Image:             first(d.LinkImgProfile, d.Image),
		Platform:          crm.Platform(d.Platform),
	}
	if !c.Platform.Valid() {
		c.Platform = crm.DetectPlatform(c)
	}
	return c
}

// Conversations fetches the inbox snapshot in backend order. Rows without
// an inline last message are hydrated from /chat/{lastMessageId}; a failed
// hydration leaves the row without a preview.
func (c *Client) Conversations(ctx context.Context) ([]crm.Summary, error) {
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("company_id", u.CompanyID)
	q.Set("limit", "1000")

	var items list
	if err := c.get(ctx, "/contacts-ordered", q, &items); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]crm.Summary, 0, len(items))
	var pending []int
	var lastIDs []string
	for _, raw := range items {
		var dto contactDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			c.logger.Warn("skipping malformed contact", zap.Error(err))
			continue
		}
		s := crm.Summary{Contact: dto.contact(), UnreadCount: max(dto.UnreadCount, 0)}
		if len(dto.LastMessage) > 0 && string(dto.LastMessage) != "null" {
			if lm, err := c.parser.LastMessage(dto.LastMessage); err == nil {
				s.LastMessage = lm
			}
		}
		if s.LastMessage == nil && dto.LastMessageID != "" {
			pending = append(pending, len(out))
			lastIDs = append(lastIDs, string(dto.LastMessageID))
		}
		out = append(out, s)
	}

	c.hydrate(ctx, out, pending, lastIDs)
	return out, nil
}

func (c *Client) hydrate(ctx context.Context, rows []crm.Summary, idx []int, ids []string) {
	sem := make(chan struct{}, hydrateWorkers)
	var wg sync.WaitGroup
	for i := range idx {
		wg.Add(1)
		sem <- struct{}{}
		go func(row int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			lm, err := c.lastMessage(ctx, id)
			if err != nil {
				c.logger.Debug("last message lookup failed", zap.String("msg_id", id), zap.Error(err))
				return
			}
			rows[row].LastMessage = lm
		}(idx[i], ids[i])
	}
	wg.Wait()
}

func (c *Client) lastMessage(ctx context.Context, id string) (*crm.LastMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/chat/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}
	return c.parser.LastMessage(single(raw))
}

// Contact fetches one contact by id.
func (c *Client) Contact(ctx context.Context, id string) (crm.Contact, error) {
	return c.findContact(ctx, "_id", id)
}

// ContactByPhone fetches the contact owning phone.
func (c *Client) ContactByPhone(ctx context.Context, phone string) (crm.Contact, error) {
	return c.findContact(ctx, "phone", phone)
}

func (c *Client) findContact(ctx context.Context, field, value string) (crm.Contact, error) {
	if value == "" {
		return crm.Contact{}, fmt.Errorf("find contact: empty %s", field)
	}
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return crm.Contact{}, err
	}
	q := url.Values{}
	q.Set(field, value)
	q.Set("company_id", u.CompanyID)
	q.Set("$limit", "1")

	var items list
	if err := c.get(ctx, "/client", q, &items); err != nil {
		return crm.Contact{}, fmt.Errorf("find contact by %s: %w", field, err)
	}
	for _, raw := range items {
		var dto contactDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return crm.Contact{}, fmt.Errorf("decode contact: %w", err)
		}
		if dto.ID != "" {
			return dto.contact(), nil
		}
	}
	return crm.Contact{}, fmt.Errorf("contact %s=%s: %w", field, value, ErrNotFound)
}

// LookupContact resolves the contact an event addresses: by id when the
// event carries one, else by phone.
func (c *Client) LookupContact(ctx context.Context, evt crm.Event) (crm.Contact, error) {
	if evt.ContactID != "" {
		ct, err := c.Contact(ctx, evt.ContactID)
		if err == nil || !errors.Is(err, ErrNotFound) || evt.Phone == "" {
			return ct, err
		}
	}
	return c.ContactByPhone(ctx, evt.Phone)
}
