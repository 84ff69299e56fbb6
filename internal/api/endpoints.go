package api

import (
	"context"
	"net/http"
	"net/url"
)

// NearbyUsers calls GET /user/showNearByUsers/{userId}.
func (c *Client) NearbyUsers(ctx context.Context, userID string, query url.Values) ([]UserDTO, error) {
	var users UserList
	err := c.DoJSON(ctx, "get nearby users", http.MethodGet, "/user/showNearByUsers/"+url.PathEscape(userID), query, nil, &users)
	return users, err
}

// TopUsers calls GET /user/getTopUsers/{userId}.
func (c *Client) TopUsers(ctx context.Context, userID string) ([]UserDTO, error) {
	var users UserList
	err := c.DoJSON(ctx, "get top users", http.MethodGet, "/user/getTopUsers/"+url.PathEscape(userID), nil, nil, &users)
	return users, err
}

// Swipe calls POST /consumable/like.
func (c *Client) Swipe(ctx context.Context, req SwipeRequest) (SwipeResponseDTO, error) {
	var resp SwipeResponseDTO
	err := c.DoJSON(ctx, "swipe", http.MethodPost, "/consumable/like", nil, req, &resp)
	return resp, err
}

// Rewind calls DELETE /consumable/like/{userId}/{targetUserId} and returns
// the restored user record.
func (c *Client) Rewind(ctx context.Context, userID, targetID string) (UserDTO, error) {
	var user UserDTO
	path := "/consumable/like/" + url.PathEscape(userID) + "/" + url.PathEscape(targetID)
	err := c.DoJSON(ctx, "rewind", http.MethodDelete, path, nil, nil, &user)
	return user, err
}

// Consumables calls GET /consumable/user/{userId}.
func (c *Client) Consumables(ctx context.Context, userID string) (ConsumableDTO, error) {
	var dto ConsumableDTO
	err := c.DoJSON(ctx, "get consumables", http.MethodGet, "/consumable/user/"+url.PathEscape(userID), nil, nil, &dto)
	return dto, err
}

// UpdatePreferences calls PUT /user/preferences/{userId}.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, req PreferencesRequest) error {
	return c.DoJSON(ctx, "update preferences", http.MethodPut, "/user/preferences/"+url.PathEscape(userID), nil, req, nil)
}

// MarkViewed calls POST /user/view.
func (c *Client) MarkViewed(ctx context.Context, req ViewRequest) error {
	return c.DoJSON(ctx, "mark viewed", http.MethodPost, "/user/view", nil, req, nil)
}

// ReportUser calls POST /reportUser.
func (c *Client) ReportUser(ctx context.Context, req ReportRequest) error {
	return c.DoJSON(ctx, "report user", http.MethodPost, "/reportUser", nil, req, nil)
}
