package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/service"
)

// promptTimeout bounds how long an access prompt waits for the owner
const promptTimeout = 10 * time.Minute

// promptBroker connects a pending access prompt with the button press answering it
type promptBroker struct {
	mu      sync.Mutex
	pending map[domain.EntityType]chan bool
}

func newPromptBroker() *promptBroker {
	return &promptBroker{pending: make(map[domain.EntityType]chan bool)}
}

// open registers a prompt for typ and returns the channel its answer arrives on
func (p *promptBroker) open(typ domain.EntityType) chan bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan bool, 1)
	p.pending[typ] = ch
	return ch
}

func (p *promptBroker) close(typ domain.EntityType, ch chan bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[typ] == ch {
		delete(p.pending, typ)
	}
}

// resolve delivers the owner's answer. It returns false if no prompt is waiting.
func (p *promptBroker) resolve(typ domain.EntityType, granted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pending[typ]
	if !ok {
		return false
	}
	delete(p.pending, typ)
	ch <- granted
	return true
}

// PromptAccess asks the owner in Telegram whether the app may use the store
func (b *Bot) PromptAccess(ctx context.Context, typ domain.EntityType) (bool, error) {
	ch := b.prompts.open(typ)
	defer b.prompts.close(typ, ch)

	text := fmt.Sprintf("%s <b>EventMe would like to access your %s</b>\n\nThe app keeps its %s in the %q list.",
		typ.Emoji(), typ.Plural(), typ.Plural(), b.cfg.CalendarTitle)
	if _, err := b.SendMessageWithKeyboard(b.cfg.OwnerTelegramID, text, accessKeyboard(typ)); err != nil {
		return false, fmt.Errorf("send access prompt: %w", err)
	}

	return waitAnswer(ctx, ch, promptTimeout)
}

// waitAnswer waits for the owner's answer on ch. An unanswered prompt
// returns service.ErrNoAnswer after timeout.
func waitAnswer(ctx context.Context, ch <-chan bool, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case granted := <-ch:
		return granted, nil
	case <-timer.C:
		return false, service.ErrNoAnswer
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
