package progressws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/analysis"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
)

// Frame is the wire shape pushed to the progress consumer per finished game.
type Frame struct {
	JobID     string `json:"job_id"`
	GameRef   string `json:"game_ref"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error,omitempty"`
	TS        int64  `json:"ts"`
}

const (
	dialTimeout    = 10 * time.Second
	writeTimeout   = 5 * time.Second
	reconnectDelay = 3 * time.Second
	sendBuffer     = 256
)

// Client pushes job progress frames to an external websocket consumer. Publish
// never blocks the analysis path: frames go through a buffered channel and are
// dropped with a log line when the consumer cannot keep up or the link is
// down. The writer reconnects with a fixed delay.
type Client struct {
	url string

	frames chan Frame

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewClient(url string) *Client {
	c := &Client{
		url:    url,
		frames: make(chan Frame, sendBuffer),
		stopCh: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.writeLoop()
	return c
}

// Publish implements queue.ProgressPublisher.
func (c *Client) Publish(jobID string, ev analysis.ProgressEvent) {
	frame := Frame{
		JobID:     jobID,
		GameRef:   ev.GameRef,
		Completed: ev.Completed,
		Total:     ev.Total,
		Failed:    ev.Err != nil,
		TS:        time.Now().UnixMilli(),
	}
	if ev.Err != nil {
		frame.Error = ev.Err.Error()
	}
	select {
	case c.frames <- frame:
	default:
		obslog.L().Warn("progress_frame_dropped", zap.String("job_id", jobID))
	}
}

func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Client) writeLoop() {
	defer c.wg.Done()

	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		}
	}()

	for {
		select {
		case <-c.stopCh:
			return
		case frame := <-c.frames:
			if conn == nil {
				conn = c.dial()
				if conn == nil {
					continue // frame dropped; link is down
				}
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, conn, frame)
			cancel()
			if err != nil {
				obslog.L().Warn("progress_push_failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "reconnect")
				conn = nil
				select {
				case <-c.stopCh:
					return
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (c *Client) dial() *websocket.Conn {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("progress_dial_failed", zap.String("url", c.url), zap.Error(err))
		return nil
	}
	return conn
}
