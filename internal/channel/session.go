package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// LinkSessionCreator mints meeting rooms as URLs under a base address. The
// host link carries a separate secret so only the host can open it.
type LinkSessionCreator struct {
	BaseURL string
}

func (c *LinkSessionCreator) CreateSession(ctx context.Context, topic string, minutes int) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if minutes <= 0 {
		return Session{}, fmt.Errorf("session length must be positive, got %d", minutes)
	}
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return Session{}, fmt.Errorf("invalid session base url %q", c.BaseURL)
	}

	id := uuid.NewString()
	join := *base
	join.Path = base.Path + "/r/" + id
	q := url.Values{}
	q.Set("topic", topic)
	q.Set("minutes", fmt.Sprint(minutes))
	join.RawQuery = q.Encode()

	host := join
	hq := join.Query()
	hq.Set("host_key", uuid.NewString())
	host.RawQuery = hq.Encode()

	return Session{ID: id, JoinURL: join.String(), HostURL: host.String()}, nil
}
