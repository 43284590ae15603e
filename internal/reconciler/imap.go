package reconciler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"certflow/internal/platform/config"
)

// IMAPMailbox reads the shared verification inbox over IMAP. The
// connection is dialed lazily and dropped on any transport error so the
// next run starts clean.
type IMAPMailbox struct {
	cfg    config.MailboxConfig
	client *imapclient.Client
}

// NewIMAPMailbox returns nil when no mailbox is configured, which
// disables the reconciler.
func NewIMAPMailbox(cfg config.MailboxConfig) *IMAPMailbox {
	if cfg.Addr == "" || cfg.Username == "" {
		return nil
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPMailbox{cfg: cfg}
}

func (m *IMAPMailbox) ensure() (*imapclient.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	client, err := imapclient.DialTLS(m.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial mailbox: %w", err)
	}
	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mailbox login: %w", err)
	}
	if _, err := client.Select(m.cfg.Folder, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select %s: %w", m.cfg.Folder, err)
	}
	m.client = client
	return client, nil
}

func (m *IMAPMailbox) drop() {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// Fetch returns unseen messages newer than since, oldest first, capped
// at limit. Whole messages are fetched with peek so the unseen flag is
// left for MarkSeen to clear on a match.
func (m *IMAPMailbox) Fetch(_ context.Context, since time.Time, limit int) ([]Message, error) {
	client, err := m.ensure()
	if err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		m.drop()
		return nil, fmt.Errorf("search mailbox: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > limit {
		uids = uids[:limit]
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetched, err := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		m.drop()
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	messages := make([]Message, 0, len(fetched))
	for _, buf := range fetched {
		raw := buf.FindBodySection(section)
		if len(raw) == 0 {
			continue
		}
		msg, err := parseMessage(uint32(buf.UID), raw)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkSeen sets the \Seen flag on one message.
func (m *IMAPMailbox) MarkSeen(_ context.Context, uid uint32) error {
	client, err := m.ensure()
	if err != nil {
		return err
	}
	err = client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}, nil).Close()
	if err != nil {
		m.drop()
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (m *IMAPMailbox) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Logout().Wait()
	m.client = nil
	return err
}

// parseMessage flattens a raw RFC 5322 message into the fields the
// matchers read.
func parseMessage(uid uint32, raw []byte) (Message, error) {
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, err
	}
	body, err := io.ReadAll(io.LimitReader(parsed.Body, 256<<10))
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		UID:         uid,
		MessageID:   strings.TrimSpace(parsed.Header.Get("Message-Id")),
		InReplyTo:   strings.TrimSpace(parsed.Header.Get("In-Reply-To")),
		References:  strings.Fields(parsed.Header.Get("References")),
		To:          headerAddresses(parsed.Header, "To"),
		Cc:          headerAddresses(parsed.Header, "Cc"),
		DeliveredTo: headerAddresses(parsed.Header, "Delivered-To"),
		Subject:     parsed.Header.Get("Subject"),
		Body:        string(body),
	}
	if date, err := parsed.Header.Date(); err == nil {
		msg.Date = date
	}
	return msg, nil
}

func headerAddresses(header mail.Header, key string) []string {
	var out []string
	for _, value := range header[key] {
		addrs, err := mail.ParseAddressList(value)
		if err != nil {
			// A malformed header can still carry a usable plus address.
			out = append(out, strings.TrimSpace(value))
			continue
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	return out
}
