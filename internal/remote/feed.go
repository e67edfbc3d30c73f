package remote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"driftboard/internal/model"
)

// Change is one row-level notification from the backend's change feed.
// The payload itself is not carried; the consumer pulls the affected
// project so ordering and LWW merging go through the same path as a
// periodic pull.
type Change struct {
	Entity    model.EntityType `json:"entity"`
	Op        model.Operation  `json:"op"`
	ProjectID string           `json:"project_id,omitempty"`
	EntityID  string           `json:"entity_id"`
}

const feedRedialDelay = 5 * time.Second

// Feed maintains a websocket subscription to the change feed and invokes
// onChange for every notification. Run blocks until ctx is canceled,
// redialing after connection loss.
type Feed struct {
	url      string
	apiKey   string
	onChange func(Change)
	log      *slog.Logger
}

func NewFeed(url, apiKey string, onChange func(Change), log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{url: url, apiKey: apiKey, onChange: onChange, log: log}
}

func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("change feed disconnected", "err", err)
		select {
		case <-time.After(feedRedialDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if f.apiKey != "" {
		opts.HTTPHeader = http.Header{
			"Authorization": []string{"Bearer " + f.apiKey},
		}
	}
	conn, _, err := websocket.Dial(ctx, f.url, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	f.log.Info("change feed connected", "url", f.url)
	for {
		var ch Change
		if err := wsjson.Read(ctx, conn, &ch); err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		f.onChange(ch)
	}
}
