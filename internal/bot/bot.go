package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskhub/internal/config"
	"taskhub/internal/model"
	"taskhub/internal/repository"
	"taskhub/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
)

const (
	menuLabelTasks   = "📋 Tasks"
	menuLabelSync    = "🔄 Sync"
	menuLabelSummary = "📊 Summary"
	menuLabelHelp    = "ℹ️ Help"
)

// Services are the collaborators the bot drives.
type Services struct {
	Users       *repository.UserRepository
	Sync        *service.SyncService
	Summaries   *service.SummaryService
	Tasks       *service.TaskService
	Connections *service.ConnectionService
	Reminders   *service.ReminderService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    *tgbotapi.BotAPI
	svc    Services
	config *config.Config
	now    func() time.Time
}

func New(token string, svc Services, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{api: api, svc: svc, config: cfg, now: time.Now}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "sync":
		return b.handleSync(ctx, msg, args)
	case "summary":
		return b.handleSummary(ctx, msg)
	case "plain":
		return b.handlePlain(ctx, msg)
	case "weekly":
		return b.handleWeekly(ctx, msg)
	case "connect":
		return b.handleConnect(ctx, msg, args)
	case "sources":
		return b.handleSources(ctx, msg)
	case "add":
		return b.handleAdd(ctx, msg, args)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg, args)
	case "delete":
		return b.handleDelete(ctx, msg, args)
	case "task":
		return b.handleShowTask(ctx, msg, args)
	case "edit":
		return b.handleEdit(ctx, msg, args)
	case "settings":
		return b.sendText(msg.Chat.ID, formatSettings(b.config))
	case "digest":
		return b.handleDigest(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(user.FirstName)
	if name == "" {
		name = "there"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 Hi, %s!\n\n%s", escape(name), helpText))
}

func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message, args string) error {
	scope, err := parseSourceArg(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	report, err := b.svc.Sync.Sync(ctx, user.ID, scope)
	if err != nil {
		return b.sendText(msg.Chat.ID, syncErrorText(err))
	}
	return b.sendText(msg.Chat.ID, formatSyncReport(report))
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	now := b.now()
	sum, err := b.svc.Summaries.Summarize(ctx, user.ID, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatSummary(sum, now))
}

func (b *Bot) handlePlain(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.svc.Summaries.PlainSummary(ctx, user.ID, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, escape(text))
}

func (b *Bot) handleWeekly(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	now := b.now()
	weekly, err := b.svc.Summaries.WeeklySummary(ctx, user.ID, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the weekly view: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatWeekly(weekly, now))
}

func (b *Bot) handleConnect(ctx context.Context, msg *tgbotapi.Message, args string) error {
	input, err := parseConnectArgs(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	report, err := b.svc.Connections.Connect(ctx, user.ID, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, syncErrorText(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔗 %s connected.\n%s",
		service.SourceDisplayName(input.Source), formatSyncReport(report)))
}

func (b *Bot) handleSources(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	creds, err := b.svc.Connections.List(ctx, user.ID)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, formatConnections(creds, b.now()))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message, args string) error {
	input, err := parseAddArgs(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	rec, err := b.svc.Tasks.CreateManual(ctx, user, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Task #%d \"%s\" saved.", rec.ID, escape(rec.Title)))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message, args string) error {
	taskID, err := parseTaskID(args, "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /complete 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.completeTask(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message, args string) error {
	taskID, err := parseTaskID(args, "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /delete 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.deleteTask(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) handleShowTask(ctx context.Context, msg *tgbotapi.Message, args string) error {
	taskID, err := parseTaskID(args, "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /task 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	rec, err := b.svc.Tasks.Get(ctx, user.ID, taskID)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return b.sendText(msg.Chat.ID, "Task not found.")
	case err != nil:
		return err
	}
	return b.sendText(msg.Chat.ID, formatTask(*rec, b.now()))
}

func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message, args string) error {
	taskID, edit, err := parseEditArgs(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	rec, err := b.svc.Tasks.Edit(ctx, user.ID, taskID, edit)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return b.sendText(msg.Chat.ID, "Task not found.")
	case err != nil:
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not edit the task: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, "✏️ Saved.\n\n"+formatTask(*rec, b.now()))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.svc.Reminders.Digest(ctx, *user, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the digest: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	rec, err := b.svc.Tasks.Complete(ctx, user.ID, taskID)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return b.sendText(chatID, "Task not found.")
	case errors.Is(err, service.ErrInvalidTransition):
		return b.sendText(chatID, "This task is already complete.")
	case err != nil:
		return b.sendText(chatID, fmt.Sprintf("Could not complete the task: %s", escape(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("🎉 \"%s\" is done.", escape(rec.Title)))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	err := b.svc.Tasks.Delete(ctx, user.ID, taskID)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return b.sendText(chatID, "Task not found.")
	case err != nil:
		return b.sendText(chatID, fmt.Sprintf("Could not delete the task: %s", escape(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Task #%d deleted.", taskID))
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	now := b.now()
	sum, err := b.svc.Summaries.Summarize(ctx, user.ID, now)
	if err != nil {
		return err
	}
	if len(sum.Records) == 0 {
		return b.sendText(chatID, "No open tasks. Use /add or /sync to get some.")
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Open tasks</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, rec := range sum.Records {
		if i == service.DigestLimit*2 {
			sb.WriteString(fmt.Sprintf("… and %d more\n", len(sum.Records)-i))
			break
		}
		sb.WriteString(service.FormatRecord(rec, now))
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", rec.ID, shortTitle(rec.Title, 20)), fmt.Sprintf("%s%d", cbCompletePrefix, rec.ID)),
		}
		if rec.Source == model.SourceManual {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("%s%d", cbDeletePrefix, rec.ID)))
		}
		buttons = append(buttons, row)
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(sb.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		log.Printf("[info] callback complete user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbCompletePrefix))
		taskID, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		user, err := b.callbackUser(ctx, cb)
		if err != nil || user == nil {
			return err
		}
		return b.completeTask(ctx, cb.Message.Chat.ID, user, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		log.Printf("[info] callback delete user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbDeletePrefix))
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		user, err := b.callbackUser(ctx, cb)
		if err != nil || user == nil {
			return err
		}
		return b.deleteTask(ctx, cb.Message.Chat.ID, user, taskID)
	default:
		return nil
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelSync):
		return true, b.handleSync(ctx, msg, "")
	case strings.ToLower(menuLabelSummary):
		return true, b.handlePlain(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.sendText(msg.Chat.ID, helpText)
	default:
		return false, nil
	}
}

// SendDigests sends the digest to every known user.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.svc.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.svc.Reminders.Digest(ctx, user, now)
		if err != nil {
			log.Printf("build digest for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send digest to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.svc.Users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// callbackUser resolves the sender of an inline button press. Buttons only
// come from messages sent to known users, so an unknown sender is told to
// /start instead of being registered here.
func (b *Bot) callbackUser(ctx context.Context, cb *tgbotapi.CallbackQuery) (*model.User, error) {
	user, err := b.svc.Users.FindByTelegramID(ctx, cb.From.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, b.sendText(cb.Message.Chat.ID, "Send /start first.")
	}
	return user, nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelSync),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelSummary),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}
