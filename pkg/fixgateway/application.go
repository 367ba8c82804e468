package fixgateway

import (
	"context"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"
)

// Application implements quickfix.Application. Inbound application messages
// are sharded by ClOrdID so messages for one order are handled in order.
type Application struct {
	*quickfix.MessageRouter
	shardQueue *shardqueue.Shardqueue
	gateway    *Gateway
}

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

func newApplication(gateway *Gateway, numShards, queueSize int) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		gateway:       gateway,
	}
	app.AddRoute(newordersingle.Route(app.onNewOrderSingle))

	app.shardQueue = shardqueue.NewShardQueue(numShards, queueSize)
	app.shardQueue.Start(func(msg interface{}) error {
		if v, ok := msg.(*inboundMsg); ok {
			if rej := app.Route(v.msg, v.sessionID); rej != nil {
				gateway.logger.Warn(context.Background(), "route failed",
					zap.String("session", v.sessionID.String()), zap.Error(rej))
			}
		}
		return nil
	})

	return app
}

func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.gateway.sessions.Store(sessionID.String(), sessionID)
	a.gateway.logger.Info(context.Background(), "fix session logged on", zap.String("session", sessionID.String()))
}

func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.gateway.sessions.Delete(sessionID.String())
	a.gateway.logger.Info(context.Background(), "fix session logged out", zap.String("session", sessionID.String()))
}

func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp hands the message to its shard. The message is copied because
// quickfix reuses it after FromApp returns.
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	cp := quickfix.NewMessage()
	msg.CopyInto(cp)
	a.shardQueue.Shard(getRoutingKey(cp, sessionID), &inboundMsg{cp, sessionID})
	return nil
}

func getRoutingKey(msg *quickfix.Message, sessionID quickfix.SessionID) string {
	if clOrdID, err := msg.Body.GetString(tag.ClOrdID); err == nil && clOrdID != "" {
		return clOrdID
	}

	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		return "MSGTYPE:" + msgType
	}

	return sessionID.String()
}

func (a *Application) onNewOrderSingle(msg newordersingle.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	req, rej := fromNewOrderSingle(msg)
	if rej != nil {
		return rej
	}
	req.SessionID = sessionID

	a.gateway.registerOrder(context.Background(), req)
	return nil
}
