package bot

import (
	"context"
	"errors"
	"fmt"

	"release_bot/internal/model"
	"release_bot/internal/storage"
)

const (
	msgInternalError = "<b>Error:</b> Internal error occurred. Please try again later."
	msgUnauthorized  = "<b>Error:</b> You are not authorized to use this command."
	msgUpdateFailed  = "<b>Error:</b> Something went wrong. Please try again later."
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Release Bot!

New Crunchyroll episodes are announced in the release channel as soon as they become available.

Use /help for the list of commands.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `The following commands are supported:

/help — display this text
/makeadmin &lt;user_id&gt; — make user an admin
/removeadmin &lt;user_id&gt; — remove user from admin`)
}

func (b *Bot) handleAdminToggle(ctx context.Context, chatID int64, executor *model.User, args string, makeAdmin bool) {
	if !b.cfg.IsOwner(executor.ID) {
		b.reply(chatID, msgUnauthorized)
		return
	}

	targetID, err := ParseUserIDArg(args)
	if err != nil {
		cmd := "removeadmin"
		if makeAdmin {
			cmd = "makeadmin"
		}
		b.reply(chatID, fmt.Sprintf("Usage: /%s &lt;user_id&gt;", cmd))
		return
	}

	target, err := b.store.GetUser(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("User %d not found in the database.", targetID))
		return
	}
	if err != nil {
		b.log.Error("get user", "user_id", targetID, "error", err)
		b.reply(chatID, "<b>Error:</b> Failed to retrieve user from the database.")
		return
	}

	if err := b.store.SetAdmin(ctx, targetID, makeAdmin); err != nil {
		b.log.Error("set admin", "user_id", targetID, "is_admin", makeAdmin, "error", err)
		b.reply(chatID, msgUpdateFailed)
		return
	}

	action := "removed from admin"
	if makeAdmin {
		action = "made an admin"
	}
	b.log.Info("admin toggled", "executor_id", executor.ID, "user_id", targetID, "is_admin", makeAdmin)
	b.reply(chatID, fmt.Sprintf("User <b>%s</b> has been %s.", escape(target.Name), action))
}
