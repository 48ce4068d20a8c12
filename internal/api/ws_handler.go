package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"cvforge/internal/api/middleware"
	"cvforge/internal/auth"
	"cvforge/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
)

// NotificationSubscriber 订阅 worker 发布的通知，*redis.Client 满足该接口。
type NotificationSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WsHandler 把账号的生成/导出通知推送给浏览器。
// 连接建立后第一条消息必须是 {"type":"auth","token":"..."}。
type WsHandler struct {
	subscriber NotificationSubscriber
	tokens     middleware.TokenValidator
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源请求。
func NewWsHandler(subscriber NotificationSubscriber, tokens middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		subscriber: subscriber,
		tokens:     tokens,
		logger:     logger,
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		for _, a := range allowed {
			if origin == a {
				return true
			}
		}
		return false
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

var errWsUnauthorized = errors.New("websocket unauthorized")

// HandleConnection 完成鉴权后订阅账号频道，并把通知转发到连接上直到任一端断开。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))
	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	channel := worker.NotifyChannel(userID)
	pubsub := h.subscriber.Subscribe(ctx, channel)
	defer pubsub.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{"type": "ready"}); err != nil {
		log.Info("websocket closed before ready", slog.Any("error", err))
		return
	}
	log.Info("websocket subscribed", slog.String("channel", channel))

	go drain(conn, cancel)
	if err := pump(ctx, conn, pubsub.Channel(), log); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// authenticate 在 wsAuthTimeout 内读取鉴权消息，失败时发送 1008 关闭帧。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))

	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, errWsUnauthorized
	}
	claims, err := h.tokens.ValidateToken(msg.Token)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		writeClose(conn, websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("%w: token type %s", errWsUnauthorized, claims.TokenType)
	}

	_ = conn.SetReadDeadline(time.Time{})
	return claims.UserID, nil
}

// drain 读取并丢弃客户端消息，用于感知断开与 pong。连接关闭时取消 ctx。
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pump 是连接上唯一的写者：转发通知并定期发送 ping。
func pump(ctx context.Context, conn *websocket.Conn, messages <-chan *redis.Message, log *slog.Logger) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				writeClose(conn, websocket.CloseGoingAway, "notifications unavailable")
				return errors.New("notification channel closed")
			}
			payload, ok := forwardable(msg.Payload)
			if !ok {
				log.Warn("dropping unknown notification", slog.String("channel", msg.Channel))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// forwardable 只转发已知事件，并按统一结构重新编码。
func forwardable(payload string) ([]byte, bool) {
	var msg worker.NotifyMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, false
	}
	switch msg.Event {
	case worker.EventTemplateGenerated, worker.EventDocumentExported:
	default:
		return nil, false
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return nil, false
	}
	return out, true
}
