package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"alertrelay/internal/config"
	"alertrelay/internal/logger"
	apperrors "alertrelay/pkg/errors"
	"alertrelay/pkg/retry"
)

// IMAPMailbox opens authenticated sessions against one IMAP folder.
type IMAPMailbox struct {
	cfg    config.MailboxConfig
	policy retry.Policy
	logger logger.Logger
}

func NewIMAPMailbox(cfg config.MailboxConfig, log logger.Logger) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg, policy: retry.ConnectPolicy(cfg.ConnectRetry), logger: log}
}

// Connect dials, logs in and selects the folder, retrying the whole sequence per the connect policy.
func (m *IMAPMailbox) Connect(ctx context.Context) (Session, error) {
	var session *imapSession

	err := retry.Do(ctx, m.policy, func() error {
		s, err := m.connectOnce(ctx)
		if err != nil {
			return err
		}
		session = s
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		m.logger.WarnwCtx(ctx, "Mailbox connect failed, retrying",
			"host", m.cfg.Host,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMailboxTransport)
	}

	return session, nil
}

func (m *IMAPMailbox) connectOnce(ctx context.Context) (*imapSession, error) {
	addr := m.cfg.Address()
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	s := &imapSession{conn: conn, timeout: m.cfg.Timeout, markSeen: m.cfg.MarkSeen}
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	s.setDeadline(ctx)

	var client *imapclient.Client
	switch strings.ToLower(m.cfg.TLS) {
	case "starttls":
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: tlsConfig})
	case "none":
		client = imapclient.New(conn, nil)
	default:
		client = imapclient.New(tls.Client(conn, tlsConfig), nil)
	}
	if err != nil {
		s.stop()
		_ = conn.Close()
		return nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
	}
	s.client = client

	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = s.Close()
		return nil, retry.Fatal(fmt.Errorf("authentication failed for %s: %w", m.cfg.Username, err))
	}

	if _, err := client.Select(m.cfg.Folder, nil).Wait(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("selecting %s: %w", m.cfg.Folder, err)
	}

	return s, nil
}

type imapSession struct {
	conn     net.Conn
	client   *imapclient.Client
	timeout  time.Duration
	markSeen bool
	stop     func() bool
}

// setDeadline bounds the next command by the configured timeout or ctx's deadline, whichever is earlier.
func (s *imapSession) setDeadline(ctx context.Context) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
}

func (s *imapSession) Search(ctx context.Context, criteria Criteria) ([]UID, error) {
	s.setDeadline(ctx)

	data, err := s.client.UIDSearch(searchCriteria(criteria), nil).Wait()
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("searching messages: %w", err), apperrors.ErrMailboxTransport)
	}

	all := data.AllUIDs()
	uids := make([]UID, 0, len(all))
	for _, uid := range all {
		uids = append(uids, UID(uid))
	}
	return uids, nil
}

func searchCriteria(c Criteria) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{
		Since:  c.Since,
		Before: c.Before,
	}
	if c.UnseenOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	return criteria
}

func (s *imapSession) Fetch(ctx context.Context, uid UID) (*RawMessage, error) {
	s.setDeadline(ctx)

	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, apperrors.Wrap(fmt.Errorf("fetching UID %d: %w", uid, err), apperrors.ErrMailboxTransport)
		}
		return nil, apperrors.Wrap(fmt.Errorf("message UID %d not found", uid), apperrors.ErrMessageProcessing)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("collecting UID %d: %w", uid, err), apperrors.ErrMailboxTransport)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, apperrors.Wrap(fmt.Errorf("message UID %d has no body", uid), apperrors.ErrParse)
	}

	// InternalDate is stable across scans, unlike the wall clock.
	captured := buf.InternalDate
	if captured.IsZero() {
		captured = time.Now()
	}

	return ParseMessage(uid, raw, captured)
}

func (s *imapSession) MarkHandled(ctx context.Context, uid UID) error {
	if !s.markSeen {
		return nil
	}

	s.setDeadline(ctx)

	err := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("flagging UID %d: %w", uid, err), apperrors.ErrMailboxTransport)
	}
	return nil
}

func (s *imapSession) Close() error {
	s.stop()
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))

	var err error
	if s.client != nil {
		_ = s.client.Logout().Wait()
		err = s.client.Close()
	} else {
		err = s.conn.Close()
	}
	return err
}
