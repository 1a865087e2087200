// Package render turns a status record into a decorated display name and
// asks the platform to apply it.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// Reason tells the renderer why a rename happens. It only changes the
// wording of the owner notification.
type Reason int

const (
	ReasonCommand Reason = iota
	ReasonExpired
)

func (r Reason) String() string {
	if r == ReasonExpired {
		return "expired"
	}
	return "command"
}

const (
	// Separator marks where a rendered suffix starts.
	Separator = "\u2063"
	// MaxNameLength is the platform's display-name limit in runes.
	MaxNameLength = 32
	ellipsis      = "…"
)

// Suffix concatenates symbol+count for every positive count in catalog order.
func Suffix(cat *catalog.Catalog, counts model.Bucket) string {
	var b strings.Builder
	for _, c := range cat.Categories() {
		n := counts[c.Tag]
		if n <= 0 {
			continue
		}
		b.WriteString(c.Symbol)
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Compose joins base and suffix and enforces MaxNameLength.
func Compose(base, suffix string) string {
	name := base
	if suffix != "" {
		name = base + Separator + suffix
	}
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxNameLength-1]) + ellipsis
}

// StripSuffix removes a previously rendered suffix from name.
func StripSuffix(name string) string {
	if i := strings.Index(name, Separator); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// Renderer applies rendered names through the platform.
type Renderer struct {
	platform platform.Platform
	catalog  *catalog.Catalog
	logger   logger.Logger
}

// New creates a Renderer.
func New(p platform.Platform, cat *catalog.Catalog, log logger.Logger) *Renderer {
	if log == nil {
		log = logger.Get()
	}
	return &Renderer{platform: p, catalog: cat, logger: log.Named("render")}
}

// Candidate computes the display name for rec using base as the base name.
func (r *Renderer) Candidate(rec model.StatusRecord, base string) string {
	return Compose(base, Suffix(r.catalog, rec.Counts))
}

// Render renames the member to the rendered candidate and returns the base
// name it used. Platform failures are logged and counted, never returned.
func (r *Renderer) Render(ctx context.Context, rec model.StatusRecord, reason Reason) string {
	member := rec.Ref()
	base := r.resolveBase(ctx, rec)
	if base == "" {
		r.logger.Warn(ctx, "no base name available; rename skipped",
			logger.String("member_id", member.MemberID))
		metrics.RecordRename("skipped")
		return ""
	}
	candidate := r.Candidate(rec, base)

	err := r.platform.Rename(ctx, member, candidate)
	switch {
	case err == nil:
		metrics.RecordRename("ok")
		return base
	case errors.Is(err, platform.ErrRefused):
		metrics.RecordRename("refused")
	default:
		metrics.RecordRename("error")
		r.logger.Warn(ctx, "rename failed",
			logger.String("member_id", member.MemberID),
			logger.Error(err),
		)
		return base
	}

	if !r.platform.IsOwner(ctx, member) {
		r.logger.Warn(ctx, "rename refused",
			logger.String("member_id", member.MemberID),
			logger.String("reason", reason.String()),
		)
		return base
	}

	if err := r.platform.Notify(ctx, member, OwnerNotice(candidate, reason)); err != nil {
		metrics.RecordNotification("failed")
		r.logger.Warn(ctx, "owner notification failed",
			logger.String("member_id", member.MemberID),
			logger.Error(err),
		)
		return base
	}
	metrics.RecordNotification("ok")
	return base
}

func (r *Renderer) resolveBase(ctx context.Context, rec model.StatusRecord) string {
	if rec.BaseName != "" {
		return rec.BaseName
	}
	name, err := r.platform.DisplayName(ctx, rec.Ref())
	if err != nil {
		r.logger.Debug(ctx, "display name lookup failed",
			logger.String("member_id", rec.MemberID),
			logger.Error(err),
		)
		return ""
	}
	return StripSuffix(name)
}

// OwnerNotice is the private message sent to an owner whose name the
// platform will not change.
func OwnerNotice(candidate string, reason Reason) string {
	lead := fmt.Sprintf("🔔 **Suggested nickname:** `%s`", candidate)
	if reason == ReasonExpired {
		lead = fmt.Sprintf("⏳ Your status expired. Suggested nickname: `%s`", candidate)
	}
	return fmt.Sprintf("%s\n\n👉 Paste this on the server:\n```/setnick \"%s\"```", lead, candidate)
}
