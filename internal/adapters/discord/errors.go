package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/promille/internal/domain/platform"
)

// Sentinel kinds for the Discord adapter.
var (
	ErrNoToken         = errors.New("discord token missing")
	ErrMemberNotFound  = errors.New("member not found")
	ErrNotInGuild      = errors.New("command needs a server")
	ErrPermissionCheck = errors.New("permission check failed")
)

// translate maps REST failures onto the platform sentinels: 403 and the
// "cannot message this user" code become ErrRefused, 404 and the unknown
// member/message codes become ErrNotFound.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeCannotSendMessagesToThisUser:
				return fmt.Errorf("%s: %w: %w", op, platform.ErrRefused, err)
			case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownMessage:
				return fmt.Errorf("%s: %w: %w", op, platform.ErrNotFound, err)
			}
		}
		if rest.Response != nil {
			switch rest.Response.StatusCode {
			case http.StatusForbidden:
				return fmt.Errorf("%s: %w: %w", op, platform.ErrRefused, err)
			case http.StatusNotFound:
				return fmt.Errorf("%s: %w: %w", op, platform.ErrNotFound, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
