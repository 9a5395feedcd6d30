package apiclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/marmos91/smbconn/pkg/smbconn"
)

// ListSessions returns a snapshot of every linked session and its shares.
func (c *Client) ListSessions(ctx context.Context) ([]smbconn.Record, error) {
	var records []smbconn.Record
	if err := c.get(ctx, "/api/v1/sessions", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetSession returns the session record followed by its shares.
func (c *Client) GetSession(ctx context.Context, id uint64) ([]smbconn.Record, error) {
	var records []smbconn.Record
	if err := c.get(ctx, sessionPath(id), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ForgetSession unlinks a session and all of its shares.
func (c *Client) ForgetSession(ctx context.Context, id uint64) error {
	return c.delete(ctx, sessionPath(id))
}

// ForgetShare unlinks one share of a session.
func (c *Client) ForgetShare(ctx context.Context, id uint64, share string) error {
	return c.delete(ctx, sessionPath(id) + "/shares/" + url.PathEscape(share))
}

// ReconnectSession re-establishes a session. Its shares reconnect lazily.
func (c *Client) ReconnectSession(ctx context.Context, id uint64) error {
	return c.post(ctx, sessionPath(id)+"/reconnect", nil, nil)
}

func sessionPath(id uint64) string {
	return fmt.Sprintf("/api/v1/sessions/%d", id)
}
