// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

type helixSubscriptions struct {
	Data []struct {
		UserID string `json:"user_id"`
		Tier   string `json:"tier"`
	} `json:"data"`
}

// IsSubscriber reports whether userID subscribes to the broadcaster. The
// answer is cached; concurrent checks for the same pair share one request.
func (c *Client) IsSubscriber(ctx context.Context, grant *Grant, broadcasterID, userID string) (bool, error) {
	key := broadcasterID + ":" + userID
	if ok, hit := c.subs.Get(key); hit {
		return ok, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ok, err := c.fetchSubscription(ctx, grant, broadcasterID, userID)
		if err != nil {
			return false, err
		}
		c.subs.Set(key, ok)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Client) fetchSubscription(ctx context.Context, grant *Grant, broadcasterID, userID string) (bool, error) {
	q := url.Values{"broadcaster_id": {broadcasterID}, "user_id": {userID}}
	req, err := c.helix(ctx, http.MethodGet, "/subscriptions?"+q.Encode(), grant.AccessToken, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.do("subscriptions", req)
	if isStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var subs helixSubscriptions
	if err := json.Unmarshal(resp.body, &subs); err != nil {
		return false, fmt.Errorf("decode subscriptions: %w", err)
	}
	for _, s := range subs.Data {
		if s.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
