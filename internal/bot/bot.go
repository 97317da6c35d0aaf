package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pathakanu/remindly/internal/metrics"
	"github.com/pathakanu/remindly/internal/model"
	myopenai "github.com/pathakanu/remindly/internal/openai"
	"github.com/rs/zerolog"
)

const (
	welcomeText     = "Welcome to the Reminder Bot! Use /help to see available commands."
	addUsage        = "Usage: /add <description> <YYYY-MM-DD HH:MM:SS>"
	deleteUsage     = "Usage: /delete <reminder_id>"
	invalidDateText = "Invalid date format. Use YYYY-MM-DD HH:MM:SS."
	emptyDescText   = "The reminder description cannot be empty."
	noRemindersText = "You have no reminders."
	failureText     = "Something went wrong. Please try again later."
)

// Store is the part of the storage gateway used by the command handlers.
type Store interface {
	CreateUser(ctx context.Context, telegramID int64, username string) error
	AddReminder(ctx context.Context, userID int64, description string, at time.Time) (uint, error)
	ListUserReminders(ctx context.Context, userID int64) ([]model.Reminder, error)
	DeleteReminder(ctx context.Context, id uint, ownerID int64) (bool, error)
}

// IntentClassifier guesses which command a free-text message meant.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, content string) (myopenai.Intent, error)
}

// Message is one inbound chat message, independent of the transport.
type Message struct {
	UserID   int64
	Username string
	Text     string
}

// Handler answers chat commands. Every reply is a short user-facing text;
// internal errors are logged, never shown.
type Handler struct {
	store      Store
	classifier IntentClassifier
	logger     zerolog.Logger
}

// New creates a Handler. classifier may be nil.
func New(store Store, classifier IntentClassifier, logger zerolog.Logger) *Handler {
	return &Handler{store: store, classifier: classifier, logger: logger}
}

// Handle processes msg and returns the reply. Empty messages get no reply.
func (h *Handler) Handle(ctx context.Context, msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return ""
	}

	// Users are created lazily on their first interaction.
	if err := h.store.CreateUser(ctx, msg.UserID, msg.Username); err != nil {
		h.logger.Error().Err(err).Int64("user_id", msg.UserID).Msg("create user")
		return failureText
	}

	command, args, isCommand := splitCommand(text)
	if !isCommand {
		return h.handleFreeText(ctx, msg.UserID, text)
	}
	label := command
	if !commands[command] {
		label = "unknown"
	}
	metrics.Commands.WithLabelValues(label).Inc()

	switch command {
	case "start":
		return welcomeText
	case "help":
		return helpResponse()
	case "add":
		return h.addReminder(ctx, msg.UserID, args)
	case "view":
		return h.viewReminders(ctx, msg.UserID)
	case "delete":
		return h.deleteReminder(ctx, msg.UserID, args)
	default:
		return "Unknown command.\n" + helpResponse()
	}
}

func (h *Handler) addReminder(ctx context.Context, userID int64, args []string) string {
	description, at, err := parseAddArgs(args)
	if err != nil {
		if errors.Is(err, errUsage) {
			return addUsage
		}
		return invalidDateText
	}

	id, err := h.store.AddReminder(ctx, userID, description, at)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return emptyDescText
		}
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("add reminder")
		return failureText
	}
	return fmt.Sprintf("Reminder %d added: %s at %s UTC.", id, description, at.Format(model.TimeLayout))
}

func (h *Handler) viewReminders(ctx context.Context, userID int64) string {
	reminders, err := h.store.ListUserReminders(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("list reminders")
		return failureText
	}
	if len(reminders) == 0 {
		return noRemindersText
	}

	var sb strings.Builder
	sb.WriteString("Your reminders:")
	for _, r := range reminders {
		sb.WriteString(fmt.Sprintf("\n%d: %s at %s (Notified: %t)", r.ID, r.Description, r.ReminderTime.UTC().Format(model.TimeLayout), r.Notified))
	}
	return sb.String()
}

func (h *Handler) deleteReminder(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return deleteUsage
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return deleteUsage
	}

	removed, err := h.store.DeleteReminder(ctx, uint(id), userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Uint64("reminder_id", id).Msg("delete reminder")
		return failureText
	}
	if !removed {
		return fmt.Sprintf("Reminder %d not found.", id)
	}
	return fmt.Sprintf("Reminder %d deleted.", id)
}

func (h *Handler) handleFreeText(ctx context.Context, userID int64, text string) string {
	if h.classifier == nil {
		return helpResponse()
	}

	intent, err := h.classifier.ClassifyIntent(ctx, text)
	if err != nil {
		if !errors.Is(err, myopenai.ErrClientNotInitialised) {
			h.logger.Warn().Err(err).Msg("intent classification")
		}
		return helpResponse()
	}

	switch intent {
	case myopenai.IntentStart:
		return welcomeText
	case myopenai.IntentView:
		return h.viewReminders(ctx, userID)
	case myopenai.IntentAdd:
		return addUsage
	case myopenai.IntentDelete:
		return deleteUsage
	default:
		return helpResponse()
	}
}

var errUsage = errors.New("usage")

// parseAddArgs splits "<description...> <YYYY-MM-DD> <HH:MM:SS>" into the
// description and a UTC time.
func parseAddArgs(args []string) (string, time.Time, error) {
	if len(args) < 3 {
		return "", time.Time{}, errUsage
	}
	n := len(args)
	at, err := time.ParseInLocation(model.TimeLayout, args[n-2]+" "+args[n-1], time.UTC)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return strings.Join(args[:n-2], " "), at, nil
}

var commands = map[string]bool{
	"start":  true,
	"help":   true,
	"add":    true,
	"view":   true,
	"delete": true,
}

// splitCommand recognises "/cmd args", "/cmd@botname args" and, for channels
// without slash commands, a bare known command word.
func splitCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}

	head := fields[0]
	if strings.HasPrefix(head, "/") {
		name := strings.TrimPrefix(head, "/")
		if at := strings.Index(name, "@"); at >= 0 {
			name = name[:at]
		}
		return strings.ToLower(name), fields[1:], true
	}

	name := strings.ToLower(head)
	if commands[name] {
		return name, fields[1:], true
	}
	return "", nil, false
}

func helpResponse() string {
	return "Available commands:\n" +
		"/start - register with the bot\n" +
		"/add <description> <YYYY-MM-DD HH:MM:SS> - add a reminder (UTC)\n" +
		"/view - list your reminders\n" +
		"/delete <reminder_id> - delete one of your reminders\n" +
		"/help - show this message"
}
