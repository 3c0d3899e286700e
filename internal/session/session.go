package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

var (
	// ErrHandshakeRejected is returned when the server answers the upgrade
	// with a 4xx status. Retrying would not change the answer.
	ErrHandshakeRejected = errors.New("session: handshake rejected")
	// ErrDialExhausted is returned once every dial attempt has failed.
	ErrDialExhausted = errors.New("session: dial attempts exhausted")
)

// Config holds the connection settings for one feed session
type Config struct {
	Endpoint  string
	Subscribe feed.Subscribe

	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for the next frame; zero disables it.
	ReadTimeout time.Duration
	WriteWait   time.Duration
	// CloseGrace is how long to wait for the server's close reply.
	CloseGrace time.Duration

	MaxDialAttempts int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteWait == 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.CloseGrace == 0 {
		c.CloseGrace = 2 * time.Second
	}
	if c.MaxDialAttempts <= 0 {
		c.MaxDialAttempts = 5
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// FrameHandler receives each text frame. Returning an error ends Run.
type FrameHandler func(ctx context.Context, frame []byte) error

// Session is one websocket connection to the feed. It sends a single
// subscribe when Run starts and an unsubscribe followed by a close frame
// when Run's context is cancelled.
type Session struct {
	id     string
	cfg    Config
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	// deadlineMu orders read deadline updates; once closing is set only
	// the close grace deadline applies.
	deadlineMu sync.Mutex
	closing    bool
}

// Dial connects to cfg.Endpoint, retrying transport failures and 5xx
// answers with exponential backoff.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	logger = logger.With(zap.String("session_id", id))

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialBackoff
	bo.MaxInterval = cfg.MaxBackoff
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxDialAttempts; attempt++ {
		conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
		if err == nil {
			logger.Info("feed connected",
				zap.String("endpoint", cfg.Endpoint),
				zap.Int("attempt", attempt),
			)
			return &Session{id: id, cfg: cfg, conn: conn, logger: logger}, nil
		}

		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, fmt.Errorf("%w: %s answered %d", ErrHandshakeRejected, cfg.Endpoint, resp.StatusCode)
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == cfg.MaxDialAttempts {
			break
		}
		wait := bo.NextBackOff()
		logger.Warn("feed dial failed, retrying",
			zap.String("endpoint", cfg.Endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrDialExhausted, cfg.MaxDialAttempts, lastErr)
}

// ID returns the session's unique id
func (s *Session) ID() string {
	return s.id
}

// Run sends the subscribe frame and then hands every text frame to handle
// until the connection ends. Cancelling ctx unsubscribes and closes the
// connection; Run then returns nil.
func (s *Session) Run(ctx context.Context, handle FrameHandler) error {
	if err := s.write(feed.EncodeSubscribe(s.cfg.Subscribe)); err != nil {
		return fmt.Errorf("failed to send subscribe: %w", err)
	}
	s.logger.Info("subscribe sent",
		zap.Strings("product_ids", s.cfg.Subscribe.ProductIDs),
		zap.Strings("channels", s.cfg.Subscribe.Channels.Names()),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-done:
		}
	}()
	defer wg.Wait()
	defer close(done)

	for {
		s.extendReadDeadline()

		kind, frame, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("feed session closed")
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Info("feed closed by server")
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		if kind != websocket.TextMessage || ctx.Err() != nil {
			continue
		}
		if err := handle(ctx, frame); err != nil {
			return err
		}
	}
}

// shutdown sends the unsubscribe and the close frame, then bounds the wait
// for the server's close reply.
func (s *Session) shutdown() {
	unsubscribe := feed.Unsubscribe{Channels: s.cfg.Subscribe.Channels}
	if err := s.write(feed.EncodeUnsubscribe(unsubscribe)); err != nil {
		s.logger.Warn("failed to send unsubscribe", zap.Error(err))
	} else {
		s.logger.Info("unsubscribe sent", zap.Strings("channels", unsubscribe.Channels.Names()))
	}

	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.cfg.WriteWait),
	)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to send close frame", zap.Error(err))
	}

	s.deadlineMu.Lock()
	s.closing = true
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.CloseGrace))
	s.deadlineMu.Unlock()
}

func (s *Session) extendReadDeadline() {
	if s.cfg.ReadTimeout <= 0 {
		return
	}
	s.deadlineMu.Lock()
	defer s.deadlineMu.Unlock()
	if !s.closing {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close releases the underlying connection
func (s *Session) Close() error {
	return s.conn.Close()
}
