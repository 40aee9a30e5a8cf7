package mail

import (
	"crypto/tls"
	"fmt"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/config"
)

// Client is a thin wrapper around go-imap v2 holding one authenticated
// connection. Not safe for concurrent use; the sync engine serializes access.
type Client struct {
	cfg config.IMAP
	log *zap.Logger

	conn *imapclient.Client
}

// NewClient creates an unconnected IMAP client.
func NewClient(cfg config.IMAP, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log.Named("imap")}
}

// Connect dials the server and authenticates. Safe to call again after a
// Close; reconnecting while connected tears down the old session first.
func (c *Client) Connect() error {
	if c.conn != nil {
		_ = c.Close()
	}

	addr := c.cfg.Addr()
	var tlsConfig *tls.Config
	if c.cfg.InsecureSkipVerify {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var conn *imapclient.Client
	var err error
	if c.cfg.TLS {
		conn, err = imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsConfig})
	} else {
		conn, err = imapclient.DialStartTLS(addr, &imapclient.Options{TLSConfig: tlsConfig})
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("login as %s: %w", c.cfg.Username, err)
	}

	c.conn = conn
	c.log.Info("connected", zap.String("addr", addr), zap.String("user", c.cfg.Username))
	return nil
}

// Close logs out and drops the connection. Idempotent.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout().Wait()
	if err != nil {
		// Logout races with server-side disconnects; force the socket shut.
		err = c.conn.Close()
	}
	c.conn = nil
	return err
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool {
	return c.conn != nil
}

// ListFolders returns all mailbox names on the server.
func (c *Client) ListFolders() ([]string, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	boxes, err := c.conn.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	names := make([]string, 0, len(boxes))
	for _, b := range boxes {
		names = append(names, b.Mailbox)
	}
	return names, nil
}

// SelectFolder opens a mailbox read-write and returns its message count.
func (c *Client) SelectFolder(folder string) (uint32, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("not connected")
	}
	data, err := c.conn.Select(folder, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", folder, err)
	}
	return data.NumMessages, nil
}

// UIDsAfter returns the UIDs of messages strictly newer than lastUID in the
// currently selected folder, ascending. lastUID 0 means all messages.
func (c *Client) UIDsAfter(lastUID uint32) ([]uint32, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := &imap.SearchCriteria{}
	if lastUID > 0 {
		criteria.UID = []imap.UIDSet{{imap.UIDRange{Start: imap.UID(lastUID + 1), Stop: 0}}}
	}

	data, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}

	var uids []uint32
	for _, uid := range data.AllUIDs() {
		// Servers answer `UID N+1:*` with the last message when nothing is
		// newer; the strict filter keeps the cursor honest.
		if uint32(uid) > lastUID {
			uids = append(uids, uint32(uid))
		}
	}
	// Lowest first so a capped batch still makes forward progress.
	slices.Sort(uids)
	return uids, nil
}

// FetchRaw downloads the full raw message for one UID without setting \Seen,
// along with its current flags.
func (c *Client) FetchRaw(uid uint32) ([]byte, []string, error) {
	if c.conn == nil {
		return nil, nil, fmt.Errorf("not connected")
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.conn.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, nil, fmt.Errorf("uid %d not found", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, nil, fmt.Errorf("fetch uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, nil, fmt.Errorf("uid %d: no body returned", uid)
	}

	flags := make([]string, 0, len(buf.Flags))
	for _, f := range buf.Flags {
		flags = append(flags, string(f))
	}
	return raw, flags, nil
}
