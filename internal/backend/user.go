package backend

import (
	"context"
	"fmt"
)

// User is the signed-in CRM user.
type User struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
}

type userDTO struct {
	ID        text `json:"_id"`
	CompanyID text `json:"company_id"`
	Name      text `json:"name"`
	Email     text `json:"email"`
}

// CurrentUser returns the signed-in user, fetched once and cached.
// Configured company and user ids take precedence over the lookup.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	c.mu.Lock()
	if c.user != nil {
		u := *c.user
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	u := User{ID: c.cfg.UserID, CompanyID: c.cfg.CompanyID}
	if u.ID == "" || u.CompanyID == "" {
		var dto userDTO
		if err := c.get(ctx, "/users/me", nil, &dto); err != nil {
			return User{}, fmt.Errorf("current user: %w", err)
		}
		if u.ID == "" {
			u.ID = string(dto.ID)
		}
		if u.CompanyID == "" {
			u.CompanyID = string(dto.CompanyID)
		}
		u.Name, u.Email = string(dto.Name), string(dto.Email)
		if u.ID == "" || u.CompanyID == "" {
			return User{}, fmt.Errorf("current user: %w: response lacks _id or company_id", ErrUnauthorized)
		}
	}

	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
	return u, nil
}
