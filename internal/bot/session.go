package bot

import (
	"context"
	"sync"

	"github.com/tazhate/eventme/internal/screen"
)

// Pending text inputs of a detail screen
const (
	inputNone  = ""
	inputTitle = "title"
	inputStart = "start"
	inputEnd   = "end"
	inputAlarm = "alarm"
)

// session is the screen stack of one chat: at most one list and one detail.
// Screens deliver on the chat's queue, and drawing and detail edits run there too.
type session struct {
	chatID int64
	queue  *screen.Queue
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	eventList      *screen.EventList
	reminderList   *screen.ReminderList
	listCancel     context.CancelFunc
	listMsgID      int
	listPage       int
	eventDetail    *screen.EventDetail
	reminderDetail *screen.ReminderDetail
	detailMsgID    int
	pending        string
}

func newSession(chatID int64) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		chatID: chatID,
		queue:  screen.NewQueue(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// openList makes the event or reminder list current, closing the previous one.
// It returns the context the new list lives in.
func (s *session) openList(events *screen.EventList, reminders *screen.ReminderList, msgID int) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeListLocked()
	ctx, cancel := context.WithCancel(s.ctx)
	s.eventList = events
	s.reminderList = reminders
	s.listCancel = cancel
	s.listMsgID = msgID
	s.listPage = 0
	return ctx
}

func (s *session) closeListLocked() {
	if s.listCancel != nil {
		s.listCancel()
		s.listCancel = nil
	}
	if s.eventList != nil {
		s.eventList.Close()
		s.eventList = nil
	}
	if s.reminderList != nil {
		s.reminderList.Close()
		s.reminderList = nil
	}
}

func (s *session) currentEventList() *screen.EventList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventList
}

func (s *session) currentReminderList() *screen.ReminderList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminderList
}

func (s *session) listMessage() (msgID, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMsgID, s.listPage
}

func (s *session) setListMessage(msgID int) {
	s.mu.Lock()
	s.listMsgID = msgID
	s.mu.Unlock()
}

func (s *session) setListPage(page int) {
	s.mu.Lock()
	s.listPage = page
	s.mu.Unlock()
}

// openEventDetail replaces any open detail screen
func (s *session) openEventDetail(d *screen.EventDetail, msgID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventDetail = d
	s.reminderDetail = nil
	s.detailMsgID = msgID
	s.pending = inputNone
}

func (s *session) openReminderDetail(d *screen.ReminderDetail, msgID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminderDetail = d
	s.eventDetail = nil
	s.detailMsgID = msgID
	s.pending = inputNone
}

// closeDetail dismisses the detail screen and returns its message ID
func (s *session) closeDetail() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgID := s.detailMsgID
	s.eventDetail = nil
	s.reminderDetail = nil
	s.detailMsgID = 0
	s.pending = inputNone
	return msgID
}

func (s *session) detail() (*screen.EventDetail, *screen.ReminderDetail, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventDetail, s.reminderDetail, s.detailMsgID
}

func (s *session) setDetailMessage(msgID int) {
	s.mu.Lock()
	s.detailMsgID = msgID
	s.mu.Unlock()
}

func (s *session) setPending(input string) {
	s.mu.Lock()
	s.pending = input
	s.mu.Unlock()
}

// takePending returns the awaited input and clears it
func (s *session) takePending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	input := s.pending
	s.pending = inputNone
	return input
}

func (s *session) close() {
	s.mu.Lock()
	s.closeListLocked()
	s.eventDetail = nil
	s.reminderDetail = nil
	s.mu.Unlock()

	s.cancel()
	s.queue.Close()
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]*session)}
}

// get returns the chat's session, creating it on first use
func (st *sessionStore) get(chatID int64) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	if !ok {
		s = newSession(chatID)
		st.sessions[chatID] = s
	}
	return s
}

func (st *sessionStore) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		s.close()
		delete(st.sessions, id)
	}
}
