// Package chat owns the conversation log and sequences questions to the
// answering service: one question in flight at a time, answers appended
// in the order the questions were asked.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kb-assistant/internal/api"
)

const (
	// FallbackText replaces the answer whenever the service call fails
	FallbackText = "Sorry, I am unable to connect to the server."
	// EmptyResponseText replaces a successful but blank answer
	EmptyResponseText = "No response from server."
)

// Asker sends one question to the answering service
type Asker interface {
	Ask(ctx context.Context, query, language string) (*api.Answer, error)
}

// Options configures a Controller
type Options struct {
	Logger   *zap.Logger
	Language string
	// OnMessage is called after each append, outside the controller lock
	OnMessage func(Message)
}

// Controller is the conversation state machine for one client session
type Controller struct {
	asker     Asker
	logger    *zap.Logger
	onMessage func(Message)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	session Session
	nextSeq int64
	tail    chan struct{} // closed once the most recently queued question resolves
	closed  bool
}

// NewController creates a controller with an empty log
func NewController(asker Asker, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lang, ok := NormalizeLanguage(opts.Language)
	if !ok {
		lang = DefaultLanguage
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &Controller{
		asker:     asker,
		logger:    logger.Named("chat").With(zap.String("session_id", id)),
		onMessage: opts.OnMessage,
		ctx:       ctx,
		cancel:    cancel,
		session: Session{
			ID:        id,
			StartedAt: time.Now(),
			Messages:  []Message{},
			Language:  lang,
		},
		nextSeq: 1,
	}
}

// Submit queues a question. Blank text is ignored and false is
// returned; nothing is logged and no request is made. The language in
// effect at the time of the call is the one sent with the question.
func (c *Controller) Submit(text string) bool {
	query := strings.TrimSpace(text)
	if query == "" {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.session.Pending++
	language := c.session.Language
	prev := c.tail
	done := make(chan struct{})
	c.tail = done
	c.wg.Add(1)
	c.mu.Unlock()

	go c.dispatch(query, language, prev, done)
	return true
}

// dispatch waits for the previous question to resolve, then appends the
// user message, asks, and appends exactly one bot message.
func (c *Controller) dispatch(query, language string, prev <-chan struct{}, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-c.ctx.Done():
			return
		}
	}

	userMsg, ok := c.append(SenderUser, query, "", false)
	if !ok {
		return
	}

	start := time.Now()
	answer, err := c.asker.Ask(c.ctx, query, language)

	text, title := FallbackText, ""
	if err != nil {
		c.logger.Warn("question failed",
			zap.Int64("sequence", userMsg.Sequence),
			zap.String("language", language),
			zap.Bool("network", api.IsNetwork(err)),
			zap.Error(err),
		)
	} else {
		text, title = formatAnswer(answer)
		c.logger.Debug("question answered",
			zap.Int64("sequence", userMsg.Sequence),
			zap.String("source", title),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	c.append(SenderBot, text, title, true)
}

// append adds a message under the lock and fires OnMessage. It reports
// false once the controller is closed; late results are dropped.
func (c *Controller) append(sender Sender, text, sourceTitle string, resolves bool) (Message, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, false
	}
	msg := Message{
		Sender:      sender,
		Text:        text,
		SourceTitle: sourceTitle,
		Sequence:    c.nextSeq,
		Timestamp:   time.Now(),
	}
	c.nextSeq++
	c.session.Messages = append(c.session.Messages, msg)
	if resolves {
		c.session.Pending--
	}
	notify := c.onMessage
	c.mu.Unlock()

	if notify != nil {
		notify(msg)
	}
	return msg, true
}

// formatAnswer turns a service answer into bot text plus citation
func formatAnswer(answer *api.Answer) (string, string) {
	if answer == nil {
		return EmptyResponseText, ""
	}
	text := answer.Response
	if strings.TrimSpace(text) == "" {
		text = EmptyResponseText
	}
	if answer.Source == nil || strings.TrimSpace(answer.Source.Title) == "" {
		return text, ""
	}
	title := strings.TrimSpace(answer.Source.Title)
	return fmt.Sprintf("%s\n\nSource: %s", text, title), title
}

// SetLanguage changes the language sent with later questions. Questions
// already queued keep the language they were submitted with.
func (c *Controller) SetLanguage(code string) error {
	lang, ok := NormalizeLanguage(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	c.mu.Lock()
	c.session.Language = lang
	c.mu.Unlock()
	return nil
}

// Language returns the session language
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Language
}

// Pending returns how many submitted questions have not been answered
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Pending
}

// Messages returns a copy of the log
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.session.Messages...)
}

// Session returns a copy of the whole session state
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.Messages = append([]Message(nil), c.session.Messages...)
	return s
}

// Wait blocks until every submitted question has resolved
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close tears the session down. Outstanding requests are canceled and
// their results discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
