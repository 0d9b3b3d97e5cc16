package remote

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

const (
	imapScheme = "imap://"

	// fullFetchBudget caps how many messages without a usable
	// BODYSTRUCTURE are downloaded whole during a listing.
	fullFetchBudget = 3
)

type imapBackend struct {
	cfg      tariff.Provider
	client   *imapclient.Client
	selected string
}

func newIMAPBackend(p tariff.Provider) *imapBackend {
	return &imapBackend{cfg: p}
}

func (b *imapBackend) Connect(ctx context.Context) error {
	_ = ctx
	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.EffectivePort()))
	opts := &imapclient.Options{TLSConfig: &tls.Config{ServerName: b.cfg.Host}}

	var client *imapclient.Client
	var err error
	if b.cfg.IMAPUseSSL {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
		if err != nil {
			log.Printf("imap: starttls with %s failed, retrying in clear: %v", addr, err)
			client, err = imapclient.DialInsecure(addr, opts)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", tariff.ErrConnection, addr, err)
	}

	if err := b.authenticate(client); err != nil {
		client.Close()
		return err
	}
	b.client = client
	b.selected = ""
	return nil
}

// authenticate runs the mechanism cascade: LOGIN unless the server
// disables it, then AUTH=PLAIN, then AUTH=CRAM-MD5. The first success
// wins; the returned error lists every attempt.
func (b *imapBackend) authenticate(client *imapclient.Client) error {
	caps := client.Caps()
	var attempts []string

	if caps.Has(imap.Cap("LOGINDISABLED")) {
		attempts = append(attempts, "login: disabled by server")
	} else {
		err := client.Login(b.cfg.Username, b.cfg.Password).Wait()
		if err == nil {
			return nil
		}
		attempts = append(attempts, "login: "+err.Error())
	}

	if caps.Has(imap.Cap("AUTH=PLAIN")) {
		err := client.Authenticate(sasl.NewPlainClient("", b.cfg.Username, b.cfg.Password))
		if err == nil {
			return nil
		}
		attempts = append(attempts, "auth=plain: "+err.Error())
	}

	if caps.Has(imap.Cap("AUTH=CRAM-MD5")) {
		err := client.Authenticate(&cramMD5Client{username: b.cfg.Username, secret: b.cfg.Password})
		if err == nil {
			return nil
		}
		attempts = append(attempts, "auth=cram-md5: "+err.Error())
	}

	return fmt.Errorf("%w: authentication as %s failed (%s)", tariff.ErrConnection, b.cfg.Username, strings.Join(attempts, "; "))
}

func (b *imapBackend) Close() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Logout().Wait()
	b.client = nil
	return err
}

func (b *imapBackend) selectMailbox(mailbox string) error {
	if b.selected == mailbox {
		return nil
	}
	if _, err := b.client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("%w: select %s: %v", tariff.ErrProtocol, mailbox, err)
	}
	b.selected = mailbox
	return nil
}

// ListFiles treats the directory as a mailbox and attachments as files.
// The search window keeps only the newest messages; their BODYSTRUCTURE
// names the attachments without transferring bodies, and a handful of
// structure-less messages get downloaded whole as a fallback.
func (b *imapBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	mailbox := normalizeMailbox(dir)
	if err := b.selectMailbox(mailbox); err != nil {
		return nil, err
	}

	criteria := parseSearchCriteria(b.searchCriteria())
	data, err := b.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: search in %s: %v", tariff.ErrProtocol, mailbox, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if max := b.cfg.EffectiveMaxUIDScan(); len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	msgs, err := b.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:           true,
		InternalDate:  true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: fetch structure in %s: %v", tariff.ErrProtocol, mailbox, err)
	}

	byUID := make(map[imap.UID]*imapclient.FetchMessageBuffer, len(msgs))
	for _, msg := range msgs {
		byUID[msg.UID] = msg
	}

	var files []tariff.FileDescriptor
	budget := fullFetchBudget
	for i := len(uids) - 1; i >= 0; i-- {
		msg := byUID[uids[i]]
		if msg == nil {
			continue
		}
		names := attachmentNames(msg.BodyStructure)
		if len(names) == 0 && budget > 0 {
			budget--
			names = b.attachmentNamesFromBody(msg.UID)
		}
		seen := make(map[string]bool, len(names))
		for _, att := range names {
			if seen[att.name] || !matchName(att.name, pattern, exclude) {
				continue
			}
			seen[att.name] = true
			files = append(files, tariff.FileDescriptor{
				Path:       imapPath(mailbox, msg.UID, att.name),
				Name:       att.name,
				Size:       att.size,
				ModifiedAt: msg.InternalDate,
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].ModifiedAt.After(files[j].ModifiedAt) })
	return capList(files, limit), nil
}

func (b *imapBackend) searchCriteria() string {
	if s := strings.TrimSpace(b.cfg.IMAPSearchCriteria); s != "" {
		return s
	}
	return "UNSEEN"
}

type attachment struct {
	name string
	size int64
}

func attachmentNames(bs imap.BodyStructure) []attachment {
	if bs == nil {
		return nil
	}
	var atts []attachment
	bs.Walk(func(path []int, part imap.BodyStructure) bool {
		single, ok := part.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		if name := single.Filename(); name != "" {
			atts = append(atts, attachment{name: name, size: int64(single.Size)})
		}
		return true
	})
	return atts
}

// attachmentNamesFromBody downloads a whole message and walks its MIME
// parts; the last resort for servers whose BODYSTRUCTURE omits filenames.
func (b *imapBackend) attachmentNamesFromBody(uid imap.UID) []attachment {
	raw, err := b.fetchRaw(uid)
	if err != nil {
		log.Printf("imap: full fetch of uid %d failed: %v", uid, err)
		return nil
	}
	var atts []attachment
	err = walkMailParts(raw, func(name string, body io.Reader) (bool, error) {
		n, _ := io.Copy(io.Discard, body)
		atts = append(atts, attachment{name: name, size: n})
		return true, nil
	})
	if err != nil {
		log.Printf("imap: parsing uid %d failed: %v", uid, err)
	}
	return atts
}

func (b *imapBackend) fetchRaw(uid imap.UID) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	msgs, err := b.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: fetch uid %d: %v", tariff.ErrProtocol, uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: uid %d", tariff.ErrNotFound, uid)
	}
	raw := msgs[0].FindBodySection(section)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: uid %d has no body", tariff.ErrNotFound, uid)
	}
	return raw, nil
}

// walkMailParts calls fn for every named attachment or inline part.
// Returning false from fn stops the walk.
func walkMailParts(raw []byte, fn func(name string, body io.Reader) (bool, error)) error {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}
		var name string
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			name, _ = h.Filename()
		case *mail.InlineHeader:
			name, _ = (&mail.AttachmentHeader{Header: h.Header}).Filename()
		}
		if name == "" {
			continue
		}
		cont, err := fn(name, part.Body)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

func (b *imapBackend) Download(ctx context.Context, remotePath, localPath string) error {
	_ = ctx
	mailbox, uid, name, err := parseIMAPPath(remotePath)
	if err != nil {
		return err
	}
	if err := b.selectMailbox(mailbox); err != nil {
		return err
	}
	raw, err := b.fetchRaw(uid)
	if err != nil {
		return err
	}

	found := false
	err = walkMailParts(raw, func(partName string, body io.Reader) (bool, error) {
		if partName != name {
			return true, nil
		}
		found = true
		if _, err := saveStream(body, localPath); err != nil {
			return false, fmt.Errorf("download %s: %w", remotePath, err)
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: attachment %s in uid %d", tariff.ErrNotFound, name, uid)
	}
	return nil
}

// EnsureDir creates the mailbox; servers answer NO when it already
// exists, so the error is only logged.
func (b *imapBackend) EnsureDir(ctx context.Context, dir string) error {
	_ = ctx
	mailbox := normalizeMailbox(dir)
	if err := b.client.Create(mailbox, nil).Wait(); err != nil {
		log.Printf("imap: create mailbox %q: %v", mailbox, err)
	}
	return nil
}

// Move relocates the whole message carrying the attachment. The client
// falls back to COPY + STORE + EXPUNGE on servers without MOVE.
func (b *imapBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	mailbox, uid, name, err := parseIMAPPath(remotePath)
	if err != nil {
		return "", err
	}
	if err := b.EnsureDir(ctx, dstDir); err != nil {
		return "", err
	}
	if err := b.selectMailbox(mailbox); err != nil {
		return "", err
	}

	target := normalizeMailbox(dstDir)
	data, err := b.client.Move(imap.UIDSetNum(uid), target).Wait()
	if err != nil {
		return "", fmt.Errorf("%w: move uid %d to %s: %v", tariff.ErrProtocol, uid, target, err)
	}

	newUID := uid
	if data != nil {
		if uids, ok := data.DestUIDs.(imap.UIDSet); ok && len(uids) > 0 {
			newUID = uids[0].Start
		}
	}
	return imapPath(target, newUID, name), nil
}

func (b *imapBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	_ = ctx
	mailbox, uid, _, err := parseIMAPPath(remotePath)
	if err != nil {
		return false, err
	}
	if err := b.selectMailbox(mailbox); err != nil {
		return false, err
	}
	err = b.client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return false, fmt.Errorf("%w: mark uid %d seen: %v", tariff.ErrProtocol, uid, err)
	}
	return true, nil
}

func normalizeMailbox(dir string) string {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" || dir == "." {
		return "INBOX"
	}
	return dir
}

func imapPath(mailbox string, uid imap.UID, name string) string {
	return fmt.Sprintf("%s%s|%d|%s", imapScheme, mailbox, uid, name)
}

func parseIMAPPath(p string) (mailbox string, uid imap.UID, name string, err error) {
	rest, ok := strings.CutPrefix(p, imapScheme)
	if !ok {
		return "", 0, "", fmt.Errorf("%w: not an imap path: %s", tariff.ErrProtocol, p)
	}
	parts := strings.SplitN(rest, "|", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, "", fmt.Errorf("%w: malformed imap path: %s", tariff.ErrProtocol, p)
	}
	n, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: bad uid in %s: %v", tariff.ErrProtocol, p, err)
	}
	return parts[0], imap.UID(n), parts[2], nil
}

// parseSearchCriteria turns the stored criteria string into structured
// search terms. Unknown tokens are skipped so a typo narrows the search
// instead of breaking the run.
func parseSearchCriteria(raw string) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	tokens := splitCriteria(raw)
	pos := 0
	next := func() string {
		if pos >= len(tokens) {
			return ""
		}
		tok := tokens[pos]
		pos++
		return tok
	}
	for pos < len(tokens) {
		switch strings.ToUpper(next()) {
		case "ALL":
		case "SEEN":
			criteria.Flag = append(criteria.Flag, imap.FlagSeen)
		case "UNSEEN":
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		case "FLAGGED":
			criteria.Flag = append(criteria.Flag, imap.FlagFlagged)
		case "UNFLAGGED":
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagFlagged)
		case "ANSWERED":
			criteria.Flag = append(criteria.Flag, imap.FlagAnswered)
		case "UNANSWERED":
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagAnswered)
		case "DELETED":
			criteria.Flag = append(criteria.Flag, imap.FlagDeleted)
		case "UNDELETED":
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagDeleted)
		case "RECENT":
			criteria.Flag = append(criteria.Flag, imap.Flag("\\Recent"))
		case "NEW":
			criteria.Flag = append(criteria.Flag, imap.Flag("\\Recent"))
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		case "FROM":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: next()})
		case "TO":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "To", Value: next()})
		case "SUBJECT":
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: next()})
		case "BODY":
			criteria.Body = append(criteria.Body, next())
		case "TEXT":
			criteria.Text = append(criteria.Text, next())
		case "SINCE":
			if t, err := parseSearchDate(next()); err == nil {
				criteria.Since = t
			}
		case "BEFORE":
			if t, err := parseSearchDate(next()); err == nil {
				criteria.Before = t
			}
		case "SENTSINCE":
			if t, err := parseSearchDate(next()); err == nil {
				criteria.SentSince = t
			}
		case "SENTBEFORE":
			if t, err := parseSearchDate(next()); err == nil {
				criteria.SentBefore = t
			}
		default:
			log.Printf("imap: ignoring unsupported search token %q", tokens[pos-1])
		}
	}
	return criteria
}

func parseSearchDate(s string) (time.Time, error) {
	return time.Parse("2-Jan-2006", strings.TrimSpace(s))
}

// splitCriteria splits on whitespace while keeping double-quoted
// phrases together.
func splitCriteria(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// cramMD5Client implements the challenge-response mechanism absent from
// the sasl package: HMAC-MD5 over the server challenge, hex encoded.
type cramMD5Client struct {
	username string
	secret   string
}

func (c *cramMD5Client) Start() (string, []byte, error) {
	return "CRAM-MD5", nil, nil
}

func (c *cramMD5Client) Next(challenge []byte) ([]byte, error) {
	mac := hmac.New(md5.New, []byte(c.secret))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))
	return []byte(c.username + " " + digest), nil
}
