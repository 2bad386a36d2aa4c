package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"timetask/internal/dispatch"
	"timetask/internal/gateway"
	"timetask/internal/task"
	"timetask/pkg/logx"
)

// Config controls the Telegram adapter.
type Config struct {
	Token          string
	PollTimeout    time.Duration // default 10s
	SendRatePerSec int           // default 20
}

// Adapter is the chat-facing edge: it feeds user commands into the
// gateway and implements the dispatcher's Resolver and Transport so fired
// tasks are delivered back through the same bot.
type Adapter struct {
	cfg   Config
	log   logx.Logger
	bot   *tele.Bot
	gw    *gateway.Service
	now   func() time.Time
	limit *rate.Limiter

	// groups maps chat title -> chat id, learned from traffic the bot
	// sees. Group-addressed tasks resolve against this at fire time.
	gmu    sync.Mutex
	groups map[string]int64

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
}

func New(cfg Config, gw *gateway.Service, loc *time.Location, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perSec := cfg.SendRatePerSec
	if perSec <= 0 {
		perSec = 20
	}
	if loc == nil {
		loc = time.Local
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		log:    log,
		bot:    b,
		gw:     gw,
		now:    func() time.Time { return time.Now().In(loc) },
		limit:  rate.NewLimiter(rate.Limit(perSec), perSec),
		groups: map[string]int64{},
	}, nil
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.runMu.Unlock()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.rememberChat(m.Chat)

		cmd, ok := ParseCommand(m.Text)
		if !ok {
			return nil
		}

		reply := a.handleCommand(ctx, cmd, m)
		if reply == "" {
			return nil
		}
		return c.Send(reply)
	})

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		go func() {
			<-ctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("telegram polling started")
		a.bot.Start()
		a.log.Info("telegram polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	a.runMu.Unlock()

	a.bot.Stop()
	a.runWG.Wait()
}

func (a *Adapter) handleCommand(ctx context.Context, cmd Command, m *tele.Message) string {
	origin := task.Origin{
		UserID:   strconv.FormatInt(m.Sender.ID, 10),
		UserName: senderName(m.Sender),
	}
	if isGroupChat(m.Chat) {
		origin.GroupName = m.Chat.Title
	}

	switch cmd.Kind {
	case CmdHelp:
		return helpText

	case CmdList:
		tasks, err := a.gw.List(origin.UserID)
		if err != nil {
			return a.errorReply(err)
		}
		return gateway.FormatList(tasks)

	case CmdCancel:
		err := a.gw.Cancel(ctx, origin.UserID, cmd.CancelID)
		switch {
		case errors.Is(err, gateway.ErrDebounced):
			return ""
		case errors.Is(err, task.ErrNotFound):
			return fmt.Sprintf("Task [%s] not found.", cmd.CancelID)
		case err != nil:
			return a.errorReply(err)
		}
		return fmt.Sprintf("Task [%s] cancelled.", cmd.CancelID)

	case CmdAdd:
		rec, scheduledAt := ResolveFrequency(cmd.Freq, cmd.Time, a.now())
		dest := task.DirectTo(origin.UserID)
		if cmd.GroupTitle != "" {
			dest = task.GroupByTitle(cmd.GroupTitle)
		}
		t, err := a.gw.Add(ctx, gateway.AddRequest{
			Recurrence:  rec,
			ScheduledAt: scheduledAt,
			Payload:     cmd.Payload,
			Dest:        dest,
			Origin:      origin,
		})
		switch {
		case errors.Is(err, gateway.ErrDebounced):
			return ""
		case errors.Is(err, gateway.ErrInvalidRequest):
			return fmt.Sprintf("Add failed: %v", err)
		case err != nil:
			return a.errorReply(err)
		}
		suffix := ""
		if t.Dest.Kind == task.TargetGroup {
			suffix = fmt.Sprintf(" group[%s]", t.Dest.GroupTitle)
		}
		return fmt.Sprintf("Task added:\n\n[%s] %s %s %s%s",
			t.ID, t.Recurrence.Wire(), t.ScheduledAt, t.Payload, suffix)
	}
	return helpText
}

func (a *Adapter) errorReply(err error) string {
	a.log.Warn("command failed", logx.Err(err))
	return "Something went wrong, please try again later."
}

// ---- dispatch.Resolver / dispatch.Transport ----

// Resolve maps a destination descriptor to a chat id handle. Direct
// destinations carry their handle already; group titles resolve against
// the learned chat map.
func (a *Adapter) Resolve(_ context.Context, d task.Destination) (string, error) {
	switch d.Kind {
	case task.TargetDirect:
		return d.UserID, nil
	case task.TargetGroup:
		a.gmu.Lock()
		id, ok := a.groups[d.GroupTitle]
		a.gmu.Unlock()
		if !ok {
			return "", dispatch.ErrUnresolved
		}
		return strconv.FormatInt(id, 10), nil
	}
	return "", dispatch.ErrUnresolved
}

// Deliver sends the reminder text to the resolved chat, throttled to stay
// inside Telegram's flood limits.
func (a *Adapter) Deliver(ctx context.Context, handle, payload string) error {
	if err := a.limit.Wait(ctx); err != nil {
		return err
	}
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("bad delivery handle %q: %w", handle, err)
	}
	_, err = a.bot.Send(tele.ChatID(id), "⏰ Reminder\n\n"+payload)
	return err
}

func (a *Adapter) rememberChat(chat *tele.Chat) {
	if chat == nil || !isGroupChat(chat) || strings.TrimSpace(chat.Title) == "" {
		return
	}
	a.gmu.Lock()
	a.groups[chat.Title] = chat.ID
	a.gmu.Unlock()
}

func isGroupChat(chat *tele.Chat) bool {
	if chat == nil {
		return false
	}
	return chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup
}

func senderName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
