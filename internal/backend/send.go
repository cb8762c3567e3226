package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/crm"
)

// AutoConnection lets the backend pick the outbound number.
const AutoConnection = "auto"

// PhoneConfig is one WhatsApp number the company can send from.
type PhoneConfig struct {
	ID          string
	PhoneNumber string
	Name        string
}

type phoneConfigDTO struct {
	ID          text `json:"_id"`
	PhoneNumber text `json:"phone_number"`
	Name        text `json:"name"`
}

// PhoneConfigs lists the outbound WhatsApp numbers.
func (c *Client) PhoneConfigs(ctx context.Context) ([]PhoneConfig, error) {
	var items list
	if err := c.get(ctx, "/omnichannel/phone-configs", nil, &items); err != nil {
		return nil, fmt.Errorf("list phone configs: %w", err)
	}
	out := make([]PhoneConfig, 0, len(items))
	for _, raw := range items {
		var dto phoneConfigDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			continue
		}
		out = append(out, PhoneConfig{ID: string(dto.ID), PhoneNumber: string(dto.PhoneNumber), Name: string(dto.Name)})
	}
	return out, nil
}

// SelectConnection picks the config whose number matches origin, comparing
// digits only. Returns AutoConnection when origin is empty or unknown.
func SelectConnection(configs []PhoneConfig, origin string) string {
	want := digits(origin)
	if want == "" {
		return AutoConnection
	}
	for _, pc := range configs {
		if digits(pc.PhoneNumber) == want {
			return pc.ID
		}
	}
	return AutoConnection
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// SendRequest is one outbound message.
type SendRequest struct {
	ContactID string
	Phone     string
	Platform  crm.Platform
	Text      string
	// ConnectionID is a phone config id or AutoConnection.
	ConnectionID string
	// Origin is the number the conversation last used, for auto selection.
	Origin string
}

// Send submits an outbound message. Only WhatsApp has a send route; the
// connection decides between the official (Twilio) and QR (ApiZap) paths.
func (c *Client) Send(ctx context.Context, req SendRequest) error {
	switch req.Platform {
	case crm.PlatformWhatsApp, "":
	default:
		return fmt.Errorf("send via %s: %w", req.Platform, ErrUnsupportedPlatform)
	}
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return err
	}

	connID, err := c.resolveConnection(ctx, req)
	if err != nil {
		return err
	}
	twilio, err := c.isTwilio(ctx, u, connID)
	if err != nil {
		return err
	}

	clientID := req.ContactID
	if clientID == "" {
		ct, err := c.ContactByPhone(ctx, req.Phone)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		clientID = ct.ID
	}

	tail := url.PathEscape(u.CompanyID) + "/" + url.PathEscape(clientID) + "/" + url.PathEscape(u.ID)
	var path string
	var body map[string]string
	if twilio {
		path = "/send-whatsapp-twilio/" + tail
		body = map[string]string{"message": req.Text}
	} else {
		path = "/apizap/send-message/" + tail
		body = map[string]string{"message": req.Text, "instanceId": connID}
	}
	if err := c.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.logger.Info("message submitted",
		zap.String("contact_id", clientID),
		zap.String("connection_id", connID),
		zap.Bool("twilio", twilio),
	)
	return nil
}

func (c *Client) resolveConnection(ctx context.Context, req SendRequest) (string, error) {
	if req.ConnectionID != "" && req.ConnectionID != AutoConnection {
		return req.ConnectionID, nil
	}
	configs, err := c.PhoneConfigs(ctx)
	if err != nil {
		return "", err
	}
	if id := SelectConnection(configs, req.Origin); id != AutoConnection {
		return id, nil
	}
	if len(configs) == 1 {
		return configs[0].ID, nil
	}
	return "", fmt.Errorf("origin %q: %w", req.Origin, ErrConnectionNotFound)
}

func (c *Client) isTwilio(ctx context.Context, u User, connID string) (bool, error) {
	q := url.Values{}
	q.Set("_id", connID)
	q.Set("company_id", u.CompanyID)
	q.Set("$limit", "1")
	var items list
	if err := c.get(ctx, "/whatsapp-connections", q, &items); err != nil {
		return false, fmt.Errorf("lookup connection: %w", err)
	}
	if len(items) == 0 {
		// Unknown connections go through the QR route.
		c.logger.Debug("connection not listed, assuming qr route", zap.String("connection_id", connID))
		return false, nil
	}
	var conn struct {
		Platform text `json:"platform"`
	}
	if err := json.Unmarshal(items[0], &conn); err != nil {
		return false, fmt.Errorf("decode connection: %w", err)
	}
	return conn.Platform == "twilio", nil
}
