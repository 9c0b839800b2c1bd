package webview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qlinetech/qcode/internal/engine"
	"github.com/qlinetech/qcode/model"
)

// ErrDisposed is returned when a disposed panel is used.
var ErrDisposed = errors.New("panel is disposed")

const inboxSize = 32

// Panel is the single long-lived view. Inbound messages are handled one
// at a time on the panel's own goroutine, so handlers never run in
// parallel.
type Panel struct {
	id     string
	nonce  string
	title  string
	logger *slog.Logger

	actions Actions

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan Message
	done   chan struct{}

	mu      sync.Mutex
	page    Page
	chat    engine.ChatStates
	preview string
	summary *model.Summary
	conns   map[*websocket.Conn]*sync.Mutex
	subs    []func()

	disposeOnce sync.Once
}

func newPanel(title string, actions Actions, logger *slog.Logger) *Panel {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Panel{
		id:      uuid.NewString(),
		nonce:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		title:   title,
		logger:  logger,
		actions: actions,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan Message, inboxSize),
		done:    make(chan struct{}),
		page:    PageChat,
		conns:   make(map[*websocket.Conn]*sync.Mutex),
	}
	go p.dispatch()
	return p
}

// ID identifies the panel in logs.
func (p *Panel) ID() string { return p.id }

// Page returns the page currently shown.
func (p *Panel) Page() Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Disposed reports whether Dispose has run.
func (p *Panel) Disposed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once the panel is disposed.
func (p *Panel) Done() <-chan struct{} { return p.done }

// AssetURI resolves a static asset name to the URI the page must use.
// URIs embed the panel nonce and stop resolving once the panel is gone.
func (p *Panel) AssetURI(name string) string {
	return fmt.Sprintf("/assets/%s/%s", p.nonce, name)
}

// OnDispose registers fn to run once when the panel is disposed.
// Registering on a disposed panel runs fn immediately.
func (p *Panel) OnDispose(fn func()) {
	p.mu.Lock()
	if p.Disposed() {
		p.mu.Unlock()
		fn()
		return
	}
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Post queues a message for the dispatch goroutine.
func (p *Panel) Post(msg Message) error {
	select {
	case <-p.done:
		return ErrDisposed
	default:
	}
	select {
	case p.inbox <- msg:
		return nil
	case <-p.ctx.Done():
		return ErrDisposed
	}
}

// Dispose cancels in-flight handlers, closes connections and releases
// every subscription. It is safe to call more than once and from several
// goroutines.
func (p *Panel) Dispose() {
	p.disposeOnce.Do(func() {
		p.cancel()

		p.mu.Lock()
		subs := p.subs
		p.subs = nil
		conns := p.conns
		p.conns = make(map[*websocket.Conn]*sync.Mutex)
		close(p.done)
		p.mu.Unlock()

		for conn, wmu := range conns {
			wmu.Lock()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "panel disposed"))
			conn.Close()
			wmu.Unlock()
		}
		for i := len(subs) - 1; i >= 0; i-- {
			subs[i]()
		}
		p.logger.Info("panel disposed", "panel", p.id)
	})
}

func (p *Panel) attach(conn *websocket.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Disposed() {
		return ErrDisposed
	}
	p.conns[conn] = &sync.Mutex{}
	return nil
}

func (p *Panel) detach(conn *websocket.Conn) {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
}

// broadcast sends msg to every connected page.
func (p *Panel) broadcast(msg Outbound) {
	p.mu.Lock()
	type target struct {
		conn *websocket.Conn
		wmu  *sync.Mutex
	}
	targets := make([]target, 0, len(p.conns))
	for c, m := range p.conns {
		targets = append(targets, target{c, m})
	}
	p.mu.Unlock()

	for _, t := range targets {
		t.wmu.Lock()
		err := t.conn.WriteJSON(msg)
		t.wmu.Unlock()
		if err != nil {
			p.logger.Warn("dropping connection", "panel", p.id, "err", err)
			p.detach(t.conn)
			t.conn.Close()
		}
	}
}

func (p *Panel) send(conn *websocket.Conn, msg Outbound) error {
	p.mu.Lock()
	wmu, ok := p.conns[conn]
	p.mu.Unlock()
	if !ok {
		return ErrDisposed
	}
	wmu.Lock()
	defer wmu.Unlock()
	return conn.WriteJSON(msg)
}

func (p *Panel) dispatch() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.inbox:
			out := p.handle(p.ctx, msg)
			// Results that arrive after disposal are dropped.
			if p.ctx.Err() != nil {
				return
			}
			for _, o := range out {
				p.broadcast(o)
			}
		}
	}
}

func errorOut(request string, err error) Outbound {
	return Outbound{Type: TypeError, Request: request, Error: err.Error()}
}

func resultOut(request string, ok bool) Outbound {
	return Outbound{Type: TypeResult, Request: request, OK: ok}
}

// handle runs one inbound message and returns the messages to send back.
func (p *Panel) handle(ctx context.Context, msg Message) []Outbound {
	p.logger.Debug("message", "panel", p.id, "type", msg.Type)

	switch msg.Type {
	case TypeSwitchPage:
		page, err := ParsePage(msg.Page)
		if err != nil {
			return []Outbound{errorOut(msg.Type, err)}
		}
		return []Outbound{p.switchTo(ctx, page)}

	case TypePrompt:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return []Outbound{errorOut(msg.Type, engine.ErrEmptyPrompt)}
		}
		p.mu.Lock()
		chat := engine.ChatStates{Turns: append([]engine.ChatTurn(nil), p.chat.Turns...)}
		p.mu.Unlock()

		reply, err := p.actions.Ask(ctx, text, chat)
		if err != nil {
			return []Outbound{errorOut(msg.Type, err)}
		}
		p.mu.Lock()
		p.chat.Turns = append(p.chat.Turns,
			engine.ChatTurn{Role: engine.RoleUser, Content: text},
			engine.ChatTurn{Role: engine.RoleAssistant, Content: reply})
		p.mu.Unlock()

		if preview, err := p.actions.Preview(ctx, reply); err == nil {
			p.mu.Lock()
			p.preview = preview
			p.mu.Unlock()
		}
		return []Outbound{p.switchTo(ctx, PageChat)}

	case TypeApply:
		response := msg.Text
		if response == "" {
			response = p.lastReply()
		}
		if response == "" {
			return []Outbound{errorOut(msg.Type, errors.New("nothing to apply"))}
		}
		summary, err := p.actions.Apply(ctx, response)
		if err != nil {
			return []Outbound{errorOut(msg.Type, err)}
		}
		p.mu.Lock()
		p.summary = &summary
		p.preview = ""
		p.mu.Unlock()
		res := resultOut(msg.Type, len(summary.Failed) == 0)
		res.Summary = &summary
		return []Outbound{res, p.switchTo(ctx, PageChanges)}

	case TypeFormat:
		return []Outbound{resultOut(msg.Type, p.actions.Format(ctx, msg.Path))}

	case TypeRunCommand:
		return []Outbound{resultOut(msg.Type, p.actions.Run(ctx, msg.Cwd, msg.Command))}

	case TypeStartDebug:
		if msg.Config == nil {
			return []Outbound{errorOut(msg.Type, errors.New("missing debug configuration"))}
		}
		return []Outbound{resultOut(msg.Type, p.actions.StartDebug(ctx, msg.Folder, *msg.Config))}

	case TypeStopDebug:
		return []Outbound{resultOut(msg.Type, p.actions.StopDebug(ctx))}

	default:
		return []Outbound{errorOut(msg.Type, fmt.Errorf("unknown message type %q", msg.Type))}
	}
}

func (p *Panel) lastReply() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.chat.Turns) - 1; i >= 0; i-- {
		if p.chat.Turns[i].Role == engine.RoleAssistant {
			return p.chat.Turns[i].Content
		}
	}
	return ""
}

// switchTo makes page current and renders it.
func (p *Panel) switchTo(ctx context.Context, page Page) Outbound {
	p.mu.Lock()
	p.page = page
	p.mu.Unlock()

	html, err := p.Render(ctx)
	if err != nil {
		return errorOut(TypeSwitchPage, err)
	}
	return Outbound{Type: TypeRender, Page: string(page), HTML: html}
}

// Render produces the full HTML document for the current page, with
// asset references bound to this panel.
func (p *Panel) Render(ctx context.Context) (string, error) {
	p.mu.Lock()
	data := pageData{
		Title:     p.title,
		Page:      p.page,
		Pages:     Pages,
		StyleURI:  p.AssetURI("style.css"),
		ScriptURI: p.AssetURI("app.js"),
		LogoURI:   p.AssetURI("logo.svg"),
		Preview:   p.preview,
		Summary:   p.summary,
	}
	for _, turn := range p.chat.Turns {
		data.Chat = append(data.Chat, chatEntry{Role: string(turn.Role), HTML: renderMarkdown(turn.Content)})
	}
	p.mu.Unlock()

	switch data.Page {
	case PageHistory:
		items, err := p.actions.History(ctx)
		if err != nil {
			data.Error = err.Error()
		}
		data.History = items
	case PageSettings:
		data.Settings = sortedSettings(p.actions.Settings())
	}
	return renderPage(data)
}
