package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/ack"
	"github.com/ppiankov/stancewatch/internal/alert"
	"github.com/ppiankov/stancewatch/internal/audit"
	"github.com/ppiankov/stancewatch/internal/config"
	"github.com/ppiankov/stancewatch/internal/nonce"
	"github.com/ppiankov/stancewatch/internal/risk"
	"github.com/ppiankov/stancewatch/internal/verify"
	"github.com/ppiankov/stancewatch/internal/veto"
)

// BuildOptions carries what Build does not read from the config file.
type BuildOptions struct {
	Generator Generator
	Logger    zerolog.Logger
	// Store and AuditLog, when set, are shared with the caller and are not
	// closed by the stack. Otherwise they are opened from the config.
	Store    nonce.Store
	AuditLog *audit.Log
}

// Stack is a fully wired orchestrator plus the resources it owns.
type Stack struct {
	*Orchestrator
	Handshake  *ack.Handshake
	Classifier *verify.Classifier
	Alerts     *alert.Dispatcher
	ConfigHash string

	store    nonce.Store
	auditLog *audit.Log
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, configHash string, opts BuildOptions) (*Stack, error) {
	logger := opts.Logger
	catalog, err := risk.LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	s := &Stack{ConfigHash: configHash}
	store := opts.Store
	if store == nil {
		store, err = nonce.Open(ctx, cfg.Nonce)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	secret := []byte(cfg.Ack.Secret)
	if len(secret) == 0 {
		secret = make([]byte, ack.MinSecretLen)
		if _, err := rand.Read(secret); err != nil {
			s.Close()
			return nil, fmt.Errorf("generate ack secret: %w", err)
		}
		logger.Warn().Msg("no ack secret configured, using an ephemeral one; pending acknowledgments will not survive a restart")
	}
	s.Handshake, err = ack.New(ack.Config{Secret: secret, TTL: cfg.Ack.TTL, Phrase: cfg.Ack.Phrase}, store)
	if err != nil {
		s.Close()
		return nil, err
	}

	var sink audit.Sink = audit.Discard
	switch {
	case opts.AuditLog != nil:
		opts.AuditLog.SetConfigHash(configHash)
		sink = opts.AuditLog
	case cfg.AuditLog != "":
		s.auditLog, err = audit.Open(cfg.AuditLog)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.auditLog.SetConfigHash(configHash)
		sink = s.auditLog
	}

	s.Alerts = alert.NewDispatcher(cfg.Alerts, logger)
	engine, err := veto.New(risk.NewClassifier(catalog, cfg.Escalation), s.Handshake, veto.Options{
		CrisisText: cfg.CrisisText,
		Sink:       sink,
		Alerts:     s.Alerts,
		Logger:     logger,
		ConfigHash: configHash,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	var fetcher verify.Fetcher
	if cfg.HasProviders() {
		fetcher = verify.NewHTTPFetcher(cfg.Verification.Providers, nil)
	}
	mediator := verify.NewMediator(fetcher, verify.MediatorConfig{
		MaxSources: cfg.Verification.MaxSources,
		Timeout:    cfg.Verification.Timeout,
		Freshness:  cfg.Verification.Freshness,
	}, logger)

	s.Classifier = verify.NewClassifier(nil)
	s.Orchestrator, err = New(engine, s.Classifier, mediator, Options{
		Generator:  opts.Generator,
		Sink:       sink,
		Logger:     logger,
		MaxRetries: cfg.Generation.MaxRetries,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// alertDrain bounds how long Close waits for pending alert deliveries.
const alertDrain = 2 * time.Second

// Close drains pending alerts, abandoning retries after alertDrain, and
// releases the resources the stack opened itself.
func (s *Stack) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), alertDrain)
	defer cancel()
	s.Alerts.Close(ctx)

	var errs []error
	if s.auditLog != nil {
		errs = append(errs, s.auditLog.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
