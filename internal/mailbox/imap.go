package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

const (
	inboxName          = "INBOX"
	defaultDialTimeout = 30 * time.Second
	commandTimeout     = 2 * time.Minute
	clientName         = "heizoel-web"
)

// Account holds the IMAP connection parameters.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// Address returns host:port.
func (a Account) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Message is one fetched message before parsing.
type Message struct {
	UID       uint32
	MessageID string
	Subject   string
	Sender    string
	Recipient string
	Date      time.Time
	Raw       []byte
}

// Source retrieves the most recent INBOX messages.
type Source interface {
	Fetch(ctx context.Context, account Account, limit int) ([]Message, error)
}

// IMAPSource reads INBOX over IMAP4rev1.
type IMAPSource struct {
	DialTimeout time.Duration
	TLSConfig   *tls.Config
	Logger      *zap.Logger
}

// Fetch connects, selects INBOX read-only and returns up to limit of the newest messages.
// Any protocol failure aborts the whole fetch.
func (s *IMAPSource) Fetch(ctx context.Context, account Account, limit int) ([]Message, error) {
	logger := s.Logger
	if logger == nil {
		logger = noOpLogger
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.connect(ctx, account)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() {
		if logoutErr := c.Logout(); logoutErr != nil {
			logger.Debug("imap logout failed", zap.Error(logoutErr))
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})
	defer stop()

	if ok, _ := c.Support("ID"); ok {
		if _, idErr := id.NewClient(c).ID(id.ID{
			id.FieldName:    clientName,
			id.FieldVersion: "1.0",
		}); idErr != nil {
			logger.Debug("imap id command rejected", zap.Error(idErr))
		}
	}

	if err := c.Login(account.Username, account.Password); err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrConnection, err)
	}

	status, err := c.Select(inboxName, true)
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrConnection, inboxName, err)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(recentRangeStart(status.Messages, limit), status.Messages)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, fetched)
	}()

	messages := make([]Message, 0, limit)
	var readErr error
	for msg := range fetched {
		converted, convertErr := convertMessage(msg, section)
		if convertErr != nil && readErr == nil {
			readErr = convertErr
		}
		messages = append(messages, converted)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrConnection, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrConnection, readErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *IMAPSource) connect(ctx context.Context, account Account) (*client.Client, error) {
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if account.UseTLS {
		tlsConfig := s.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: account.Host}
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", account.Address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", account.Address())
	}
	if err != nil {
		return nil, err
	}

	// client.New blocks on the server greeting, which no command timeout covers.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	c, err := client.New(conn)
	if !stop() {
		_ = conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.Timeout = commandTimeout
	return c, nil
}

// recentRangeStart returns the first sequence number of the newest limit messages.
func recentRangeStart(total uint32, limit int) uint32 {
	if limit <= 0 || uint32(limit) >= total {
		return 1
	}
	return total - uint32(limit) + 1
}

func convertMessage(msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	converted := Message{UID: msg.Uid, Date: msg.InternalDate}
	if envelope := msg.Envelope; envelope != nil {
		converted.MessageID = normalizeMessageID(envelope.MessageId)
		converted.Subject = envelope.Subject
		if !envelope.Date.IsZero() {
			converted.Date = envelope.Date
		}
		if len(envelope.From) > 0 {
			converted.Sender = formatAddress(envelope.From[0])
		}
		if len(envelope.To) > 0 {
			converted.Recipient = formatAddress(envelope.To[0])
		}
	}
	body := msg.GetBody(section)
	if body == nil {
		return converted, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return converted, err
	}
	converted.Raw = raw
	return converted, nil
}

func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}
	if address.PersonalName == "" {
		return address.Address()
	}
	return fmt.Sprintf("%s <%s>", address.PersonalName, address.Address())
}

func normalizeMessageID(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "<>")
}

// syntheticMessageID identifies a message that carries no Message-ID header.
func syntheticMessageID(uid uint32, host string) string {
	return fmt.Sprintf("uid:%d@%s", uid, host)
}
