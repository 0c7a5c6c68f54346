package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vdavid/mailpilot/internal/agent"
	"github.com/vdavid/mailpilot/internal/db"
	"github.com/vdavid/mailpilot/internal/events"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/smtp"
)

type fakeStore struct {
	mu         sync.Mutex
	nextID     int
	mailboxes  map[string]*models.MailboxConfig
	categories map[string][]models.Category
	incoming   map[string]*models.IncomingMessage
	sent       map[string]*models.SentMessage
	activity   []*models.ActivityLog
	statuses   []string
	admitErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mailboxes:  map[string]*models.MailboxConfig{},
		categories: map[string][]models.Category{},
		incoming:   map[string]*models.IncomingMessage{},
		sent:       map[string]*models.SentMessage{},
	}
}

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeStore) addMailbox(cfg *models.MailboxConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes[cfg.ID] = cfg
}

func (s *fakeStore) setCategories(userID string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var categories []models.Category
	for _, name := range names {
		categories = append(categories, models.Category{ID: "cat-" + name, UserID: userID, Name: name})
	}
	s.categories[userID] = categories
}

func (s *fakeStore) GetMailboxConfig(_ context.Context, mailboxID string) (*models.MailboxConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, db.ErrMailboxNotFound
	}
	c := *cfg
	return &c, nil
}

func (s *fakeStore) LoadEnabledMailboxConfigs(_ context.Context, userID string) ([]*models.MailboxConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MailboxConfig
	for _, cfg := range s.mailboxes {
		if cfg.UserID == userID && cfg.Enabled {
			c := *cfg
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) LoadAllEnabledMailboxConfigs(_ context.Context) ([]*models.MailboxConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MailboxConfig
	for _, cfg := range s.mailboxes {
		if cfg.Enabled {
			c := *cfg
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateConnectionStatus(_ context.Context, _ string, status string, _ *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) LoadCategorySet(_ context.Context, userID string) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Category(nil), s.categories[userID]...), nil
}

func (s *fakeStore) AdmitIncomingMessage(_ context.Context, msg *models.IncomingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admitErr != nil {
		return s.admitErr
	}
	key := msg.UserID + "|" + msg.CorrelationID
	if _, ok := s.incoming[key]; ok {
		return db.ErrAlreadyProcessed
	}
	msg.ID = s.id("incoming")
	c := *msg
	s.incoming[key] = &c
	return nil
}

func (s *fakeStore) StoreCategory(_ context.Context, messageID string, categoryID *string, analysis map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.incoming {
		if msg.ID == messageID {
			msg.CategoryID = categoryID
			msg.Analysis = analysis
			return nil
		}
	}
	return db.ErrMessageNotFound
}

func (s *fakeStore) AdmitSentMessage(_ context.Context, msg *models.SentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := msg.UserID + "|" + msg.MessageID
	if _, ok := s.sent[key]; ok {
		return db.ErrAlreadyProcessed
	}
	msg.ID = s.id("sent")
	c := *msg
	s.sent[key] = &c
	return nil
}

func (s *fakeStore) RecordSentMessage(ctx context.Context, msg *models.SentMessage) error {
	err := s.AdmitSentMessage(ctx, msg)
	if errors.Is(err, db.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func (s *fakeStore) RecordActivity(_ context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.activity = append(s.activity, &c)
	return nil
}

func (s *fakeStore) incomingByCorrelation(userID, correlationID string) *models.IncomingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.incoming[userID+"|"+correlationID]
	if !ok {
		return nil
	}
	c := *msg
	return &c
}

func (s *fakeStore) incomingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incoming)
}

func (s *fakeStore) sentMessages() []*models.SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SentMessage
	for _, msg := range s.sent {
		c := *msg
		out = append(out, &c)
	}
	return out
}

func (s *fakeStore) activityTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, entry := range s.activity {
		out = append(out, entry.Type)
	}
	return out
}

func (s *fakeStore) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

// fakeMailbox is the server side shared by every session a fakeDialer opens.
type fakeMailbox struct {
	mu        sync.Mutex
	folders   map[models.MailboxRole]string
	messages  map[string][]*imap.FetchedMessage
	fetchErrs map[uint32]error
	listErrs  map[string]error
	fetches   int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		folders:   map[models.MailboxRole]string{models.RoleInbox: "INBOX"},
		messages:  map[string][]*imap.FetchedMessage{},
		fetchErrs: map[uint32]error{},
		listErrs:  map[string]error{},
	}
}

func (m *fakeMailbox) add(folder string, uid uint32, raw string, flags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[folder] = append(m.messages[folder], &imap.FetchedMessage{
		UID:          uid,
		Flags:        flags,
		InternalDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Raw:          []byte(raw),
	})
}

func (m *fakeMailbox) setFetchErr(uid uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fetchErrs, uid)
		return
	}
	m.fetchErrs[uid] = err
}

func (m *fakeMailbox) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

type fakeSession struct {
	box      *fakeMailbox
	selected string
	closed   atomic.Bool
	onFetch  func()
}

func (s *fakeSession) ResolveFolder(role models.MailboxRole, configured string) (string, error) {
	if role == models.RoleSent && configured != "" {
		return configured, nil
	}
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	folder, ok := s.box.folders[role]
	if !ok {
		return "", imap.ErrFolderNotFound
	}
	return folder, nil
}

func (s *fakeSession) ListMessageIDs(folder string, _ imap.SearchFilter, limit int) ([]uint32, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	if err := s.box.listErrs[folder]; err != nil {
		return nil, err
	}
	s.selected = folder
	var uids []uint32
	for _, msg := range s.box.messages[folder] {
		uids = append(uids, msg.UID)
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	return uids, nil
}

func (s *fakeSession) FetchMessage(uid uint32) (*imap.FetchedMessage, error) {
	if s.onFetch != nil {
		s.onFetch()
	}
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	s.box.fetches++
	if err := s.box.fetchErrs[uid]; err != nil {
		return nil, err
	}
	for _, msg := range s.box.messages[s.selected] {
		if msg.UID == uid {
			return msg, nil
		}
	}
	return nil, &imap.FetchError{Folder: s.selected, UID: uid, Err: fmt.Errorf("no such message")}
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu        sync.Mutex
	box       *fakeMailbox
	errs      []error
	dials     int
	passwords []string
	sessions  []*fakeSession
	// block, when set, makes Dial wait for it to close while ignoring ctx.
	block chan struct{}
}

func (d *fakeDialer) Dial(_ context.Context, cfg *models.MailboxConfig) (imap.MailboxSession, error) {
	d.mu.Lock()
	call := d.dials
	d.dials++
	d.passwords = append(d.passwords, cfg.Password)
	block := d.block
	var err error
	if call < len(d.errs) {
		err = d.errs[call]
	}
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	session := &fakeSession{box: d.box}
	d.mu.Lock()
	d.sessions = append(d.sessions, session)
	d.mu.Unlock()
	return session, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) allClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

type fakeCapability struct {
	mu     sync.Mutex
	answer string
	err    error
	panics bool
	calls  int
}

func (f *fakeCapability) Classify(_ context.Context, _ agent.ClassifyRequest) (*agent.ClassifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("classifier exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &agent.ClassifyResponse{Category: f.answer}, nil
}

func (f *fakeCapability) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	mu         sync.Mutex
	confidence map[string]float64
	calls      int
}

func (f *fakeGenerator) Respond(_ context.Context, req agent.RespondRequest) (*agent.RespondResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &agent.RespondResponse{
		Body:       "Thanks, we are looking into it.",
		Confidence: f.confidence[req.Subject],
	}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*smtp.OutgoingMessage
}

func (f *fakeSender) Send(_ context.Context, _ *models.MailboxConfig, msg *smtp.OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("<reply-%d@example.com>", len(f.sent)), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
