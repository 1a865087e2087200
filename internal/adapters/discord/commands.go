package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/okian/promille/internal/adapters/repository"
	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/permission"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/render"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/pkg/logger"
)

type command func(ctx context.Context, m Message, args []string) error

func (r *Router) commands() map[string]command {
	return map[string]command{
		"help":                r.help,
		"add":                 r.add,
		"status":              r.status,
		"clear":               r.clear,
		"leaderboard":         r.leaderboard,
		"setchannel":          r.setChannel,
		"init_status_message": r.initStatusMessage,
	}
}

func (r *Router) help(ctx context.Context, m Message, _ []string) error {
	p := r.prefix
	var b strings.Builder
	fmt.Fprintf(&b, "**Commands (prefix: %s)**:\n", p)
	fmt.Fprintf(&b, "%shelp - show this help\n", p)
	fmt.Fprintf(&b, "%sadd <category> <qty> - add to your status\n", p)
	fmt.Fprintf(&b, "%sadd <member> <category> <qty> - add to someone else's status (Manage Nicknames / Admin)\n", p)
	fmt.Fprintf(&b, "%sstatus - show your status with time left\n", p)
	fmt.Fprintf(&b, "%sclear [member] - clear your status or someone else's (Manage Nicknames / Admin)\n", p)
	fmt.Fprintf(&b, "%sleaderboard [hide|post|chart] [YYYY-MM] - monthly leaderboard; hide sends it as a DM\n", p)
	fmt.Fprintf(&b, "%sinit_status_message - post the reaction panel (admin)\n", p)
	fmt.Fprintf(&b, "%ssetchannel <#channel>|none - set the listening channel (admin)\n\n", p)
	fmt.Fprintf(&b, "Categories: %s", r.svc.Catalog().Names())
	r.say(ctx, m.ChannelID, b.String())
	return nil
}

func (r *Router) add(ctx context.Context, m Message, args []string) error {
	if m.GuildID == "" {
		r.say(ctx, m.ChannelID, "This command only works in a server.")
		return nil
	}

	member := model.MemberRef{GuildID: m.GuildID, MemberID: m.AuthorID}
	hint := render.StripSuffix(m.AuthorName)
	switch len(args) {
	case 2:
	case 3:
		if !r.allowed(ctx, m, permission.CanActForOthers) {
			r.say(ctx, m.ChannelID, "You need Manage Nicknames or Administrator to add for others.")
			return nil
		}
		target, name, err := r.chat.FindMember(ctx, m.GuildID, args[0])
		if err != nil {
			r.say(ctx, m.ChannelID, "Member not found: "+args[0])
			return nil
		}
		member, hint = target, render.StripSuffix(name)
		args = args[1:]
	default:
		r.say(ctx, m.ChannelID, fmt.Sprintf("Usage: %sadd <category> <qty> or %sadd <member> <category> <qty>", r.prefix, r.prefix))
		return nil
	}

	qty, err := strconv.Atoi(args[1])
	if err != nil {
		r.say(ctx, m.ChannelID, fmt.Sprintf("Quantity must be a number, e.g. `%sadd beer 2`.", r.prefix))
		return nil
	}
	cat, ok := r.svc.Catalog().Lookup(args[0])
	if !ok {
		r.say(ctx, m.ChannelID, "Unknown category! Allowed: "+r.svc.Catalog().Names()+".")
		return nil
	}

	if _, err := r.svc.RecordEvent(ctx, member, hint, cat.Tag, qty); err != nil {
		if errors.Is(err, repository.ErrQuantityTooLarge) {
			r.say(ctx, m.ChannelID, fmt.Sprintf("That is more than I can count: totals stop at %d.", model.MaxCount))
			return nil
		}
		if errors.Is(err, repository.ErrInvalidQuantity) {
			r.say(ctx, m.ChannelID, "Quantity must be a positive whole number.")
			return nil
		}
		return err
	}
	r.say(ctx, m.ChannelID, fmt.Sprintf("Added **%d** to **%s** for %s.", qty, cat.Tag, mention(member.MemberID)))
	return nil
}

func (r *Router) status(ctx context.Context, m Message, _ []string) error {
	rec, err := r.svc.GetStatus(ctx, m.AuthorID)
	if errors.Is(err, repository.ErrNoActiveStatus) {
		r.say(ctx, m.ChannelID, "You have no active status.")
		return nil
	}
	if err != nil {
		return err
	}
	r.say(ctx, m.ChannelID, formatStatus(types.NewStatus(r.svc.Catalog(), rec, r.svc.Now())))
	return nil
}

func formatStatus(st types.Status) string {
	var b strings.Builder
	b.WriteString("**Your status**:")
	for _, c := range st.Categories {
		fmt.Fprintf(&b, "\n• %s: %d (~%dh left)", capitalize(c.Category), c.Count, c.HoursLeft)
	}
	return b.String()
}

func (r *Router) clear(ctx context.Context, m Message, args []string) error {
	if m.GuildID == "" {
		r.say(ctx, m.ChannelID, "This command only works in a server.")
		return nil
	}
	if len(args) == 0 {
		_, err := r.svc.ClearStatus(ctx, model.MemberRef{GuildID: m.GuildID, MemberID: m.AuthorID})
		if errors.Is(err, repository.ErrNoActiveStatus) {
			r.say(ctx, m.ChannelID, "You have no status to clear.")
			return nil
		}
		if err != nil {
			return err
		}
		r.say(ctx, m.ChannelID, "Your status has been cleared.")
		return nil
	}

	if !r.allowed(ctx, m, permission.CanClearOthers) {
		r.say(ctx, m.ChannelID, "You need Manage Nicknames or Administrator to clear other members.")
		return nil
	}
	target, _, err := r.chat.FindMember(ctx, m.GuildID, args[0])
	if err != nil {
		r.say(ctx, m.ChannelID, "Member not found: "+args[0])
		return nil
	}
	_, err = r.svc.ClearStatus(ctx, target)
	if errors.Is(err, repository.ErrNoActiveStatus) {
		r.say(ctx, m.ChannelID, fmt.Sprintf("%s has no status to clear.", mention(target.MemberID)))
		return nil
	}
	if err != nil {
		return err
	}
	r.say(ctx, m.ChannelID, fmt.Sprintf("%s's status has been cleared (by %s).", mention(target.MemberID), mention(m.AuthorID)))
	return nil
}

func (r *Router) leaderboard(ctx context.Context, m Message, args []string) error {
	var mode, month string
	for _, a := range args {
		switch strings.ToLower(a) {
		case "hide", "post", "chart":
			mode = strings.ToLower(a)
		default:
			month = a
		}
	}

	switch mode {
	case "post":
		if !r.allowed(ctx, m, permission.CanConfigure) {
			r.say(ctx, m.ChannelID, "Only an administrator can do that.")
			return nil
		}
		_, err := r.svc.PublishLeaderboard(ctx, m.ChannelID)
		r.leaderboardFailed(ctx, m, err)
		return nil
	case "chart":
		png, err := r.svc.LeaderboardChart(ctx, month)
		if r.leaderboardFailed(ctx, m, err) {
			return nil
		}
		if month == "" {
			month = r.svc.Now().UTC().Format("2006-01")
		}
		return r.chat.SendFile(ctx, m.ChannelID, "leaderboard-"+month+".png", png)
	}

	text, err := r.svc.LeaderboardText(ctx, month)
	if r.leaderboardFailed(ctx, m, err) {
		return nil
	}
	if mode != "hide" {
		r.say(ctx, m.ChannelID, text)
		return nil
	}
	if err := r.chat.Notify(ctx, model.MemberRef{GuildID: m.GuildID, MemberID: m.AuthorID}, text); err != nil {
		r.logger.Debug(ctx, "leaderboard dm failed", logger.Error(err))
		r.say(ctx, m.ChannelID, fmt.Sprintf("I can't send you a direct message, %s.", mention(m.AuthorID)))
		return nil
	}
	r.say(ctx, m.ChannelID, fmt.Sprintf("Check your direct messages, %s!", mention(m.AuthorID)))
	return nil
}

// leaderboardFailed answers user errors in chat and reports whether the
// command should stop.
func (r *Router) leaderboardFailed(ctx context.Context, m Message, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ranking.ErrInvalidMonth):
		r.say(ctx, m.ChannelID, "Month must look like YYYY-MM.")
	case errors.Is(err, ranking.ErrEmptyStanding):
		r.say(ctx, m.ChannelID, "Nothing to chart yet.")
	case errors.Is(err, platform.ErrRefused):
		r.say(ctx, m.ChannelID, "I am not allowed to post the leaderboard here.")
	default:
		r.logger.Warn(ctx, "leaderboard failed", logger.Error(err))
		r.say(ctx, m.ChannelID, "The leaderboard is not available right now.")
	}
	return true
}

func (r *Router) setChannel(ctx context.Context, m Message, args []string) error {
	if !r.allowed(ctx, m, permission.CanConfigure) {
		r.say(ctx, m.ChannelID, "Only an administrator can do that.")
		return nil
	}
	if len(args) != 1 {
		r.say(ctx, m.ChannelID, fmt.Sprintf("Usage: %ssetchannel <#channel>|none", r.prefix))
		return nil
	}
	if strings.EqualFold(args[0], "none") {
		r.svc.SetListeningChannel(ctx, "")
		r.say(ctx, m.ChannelID, "Listening in every channel.")
		return nil
	}
	id, ok := parseChannel(args[0])
	if !ok {
		r.say(ctx, m.ChannelID, "Not a channel: "+args[0])
		return nil
	}
	r.svc.SetListeningChannel(ctx, id)
	r.say(ctx, m.ChannelID, fmt.Sprintf("Listening channel set to <#%s>.", id))
	return nil
}

func (r *Router) initStatusMessage(ctx context.Context, m Message, _ []string) error {
	if !r.allowed(ctx, m, permission.CanConfigure) {
		r.say(ctx, m.ChannelID, "Only an administrator can do that.")
		return nil
	}
	cats := r.svc.Catalog().Categories()
	id, err := r.chat.Publish(ctx, m.ChannelID, panelText(cats))
	if err != nil {
		return err
	}
	r.svc.SetStatusMessage(ctx, id)

	for _, c := range cats {
		if err := r.chat.React(ctx, m.ChannelID, id, c.Symbol); err != nil {
			r.logger.Warn(ctx, "panel reaction failed",
				logger.String("emoji", c.Symbol),
				logger.Error(err),
			)
		}
	}
	if err := r.chat.React(ctx, m.ChannelID, id, ClearEmoji); err != nil {
		r.logger.Warn(ctx, "panel reaction failed", logger.String("emoji", ClearEmoji), logger.Error(err))
	}
	return nil
}

func panelText(cats []catalog.Category) string {
	var b strings.Builder
	b.WriteString("**React to record a drink**:")
	for _, c := range cats {
		fmt.Fprintf(&b, "\n%s - %s (%s)", c.Symbol, capitalize(string(c.Tag)), formatWindow(c.Window))
	}
	fmt.Fprintf(&b, "\n%s - Clear status", ClearEmoji)
	return b.String()
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return strconv.Itoa(int(d/time.Hour)) + "h"
	}
	return d.String()
}

// allowed reports whether the author passes check. A failed lookup denies.
func (r *Router) allowed(ctx context.Context, m Message, check func(permission.Snapshot) bool) bool {
	snap, err := r.chat.Permissions(ctx, m.GuildID, m.ChannelID, m.AuthorID)
	if err != nil {
		r.logger.Warn(ctx, "permission lookup failed",
			logger.String("member_id", m.AuthorID),
			logger.Error(err),
		)
		return false
	}
	return check(snap)
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
