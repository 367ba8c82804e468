package fixgateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"go.uber.org/zap"
)

// Registrar admits signed order terms into the book.
type Registrar interface {
	RegisterOrderTerms(hash string, terms orderbook.Terms) (notify.Notification, error)
}

type Config struct {
	SettingsFile string
	NumShards    int
	QueueSize    int
}

// Gateway is a FIX 4.4 acceptor. NewOrderSingle messages register order
// terms; every book notification is sent back to logged-on sessions as an
// ExecutionReport drop copy.
type Gateway struct {
	cfg       Config
	registrar Registrar
	logger    *logging.Logger
	send      func(m quickfix.Messagable, sessionID quickfix.SessionID) error

	app      *Application
	acceptor *quickfix.Acceptor
	sessions sync.Map // session string -> quickfix.SessionID
}

func NewGateway(cfg Config, registrar Registrar, logger *logging.Logger) *Gateway {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100_000
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gateway{
		cfg:       cfg,
		registrar: registrar,
		logger:    logger.Named("fixgateway"),
		send:      quickfix.SendToTarget,
	}
	g.app = newApplication(g, cfg.NumShards, cfg.QueueSize)
	return g
}

func (g *Gateway) Start(ctx context.Context) error {
	data, err := os.ReadFile(g.cfg.SettingsFile)
	if err != nil {
		return fmt.Errorf("error reading %v: %w", g.cfg.SettingsFile, err)
	}

	settings, err := quickfix.ParseSettings(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error parsing %v: %w", g.cfg.SettingsFile, err)
	}

	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		return fmt.Errorf("unable to create fix log factory: %w", err)
	}
	acceptor, err := quickfix.NewAcceptor(g.app, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return fmt.Errorf("unable to create acceptor: %w", err)
	}
	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("unable to start FIX acceptor: %w", err)
	}
	g.acceptor = acceptor

	g.logger.Info(ctx, "fix acceptor started", zap.String("settings", g.cfg.SettingsFile))
	return nil
}

func (g *Gateway) Stop() {
	if g.acceptor != nil {
		g.acceptor.Stop()
	}
}

func (g *Gateway) registerOrder(ctx context.Context, req *NewOrderSingle) {
	hash, terms, err := req.ToTerms()
	if err == nil {
		_, err = g.registrar.RegisterOrderTerms(hash, terms)
	}
	if err == nil {
		// the drop copy of the resulting notification acknowledges it
		return
	}

	g.logger.Warn(ctx, "order terms rejected",
		zap.String("cl_ord_id", req.ClOrdID), zap.String("session", req.SessionID.String()), zap.Error(err))
	if sendErr := g.send(rejectExecutionReport(req, uuid.NewString(), err), req.SessionID); sendErr != nil {
		g.logger.Error(ctx, "send reject failed", zap.Error(sendErr))
	}
}

func (g *Gateway) Name() string { return "fix" }

// Deliver sends n to every logged-on session.
func (g *Gateway) Deliver(ctx context.Context, n notify.Notification) error {
	m := notify.ToMessage(n)

	var errs []error
	g.sessions.Range(func(_, v any) bool {
		sessionID := v.(quickfix.SessionID)
		if err := g.send(orderExecutionReport(m), sessionID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sessionID, err))
		}
		return true
	})
	return errors.Join(errs...)
}
