// Package render substitutes {{placeholder}} variables into campaign
// subjects, bodies and SMS text using the Liquid template language.
//
// Placeholder names match case-insensitively. Anything that cannot be
// resolved renders as an empty string, and rendering never fails: text that
// is not valid Liquid falls back to plain placeholder substitution.
package render

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// Context keys understood by campaign templates. Trigger evaluators capture
// these at enrollment time; the dispatch loop adds the recipient identity.
const (
	KeyName             = "name"
	KeyFirstName        = "firstName"
	KeyEmail            = "email"
	KeyEventTitle       = "eventTitle"
	KeyEventDate        = "eventDate"
	KeyEventTime        = "eventTime"
	KeyEventLocation    = "eventLocation"
	KeyCreditsRemaining = "creditsRemaining"
	KeyExpiryDate       = "expiryDate"
	KeyMilestone        = "milestone"
	KeyReward           = "reward"
	KeyDaysInactive     = "daysInactive"
	KeyLastClassDate    = "lastClassDate"
	KeyClassCount       = "classCount"
	KeyBookingCount     = "bookingCount"
	KeyAcquisitionDate  = "acquisitionDate"
	KeyRegistrationDate = "registrationDate"
	KeyTierName         = "tierName"
	KeyStudioName       = "studioName"
	KeyStudioPhone      = "studioPhone"
	KeySiteURL          = "siteUrl"
)

// Date and time layouts used when capturing context values.
const (
	DateLayout = "Monday, January 2, 2006"
	TimeLayout = "3:04 PM"
)

var (
	// leading identifier of an output tag, e.g. "{{ eventTitle" in "{{ eventTitle | upcase }}"
	tagIdentRe = regexp.MustCompile(`\{\{(-?\s*)([A-Za-z_][A-Za-z0-9_]*)`)
	// any output tag; group 1 is set when it is a bare placeholder with no filters
	outputTagRe = regexp.MustCompile(`\{\{(?:-?\s*([A-Za-z_][A-Za-z0-9_]*)\s*-?\}\}|[^{}]*\}\})`)
)

// Renderer renders templates against a per-message context merged with
// studio-wide constants. It is safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	studio domain.StudioInfo
	cache  sync.Map // normalized template -> *liquid.Template
}

// New creates a Renderer carrying the studio constants.
func New(studio domain.StudioInfo) *Renderer {
	return &Renderer{
		engine: liquid.NewEngine(),
		studio: studio,
	}
}

// Render substitutes placeholders in tpl. Unknown placeholders are removed.
func (r *Renderer) Render(tpl string, vars map[string]string) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	dict := r.dictionary(vars)
	normalized := tagIdentRe.ReplaceAllStringFunc(tpl, func(m string) string {
		sub := tagIdentRe.FindStringSubmatch(m)
		return "{{" + sub[1] + strings.ToLower(sub[2])
	})

	tmpl, err := r.parse(normalized)
	if err == nil {
		bindings := make(map[string]interface{}, len(dict))
		for k, v := range dict {
			bindings[k] = v
		}
		out, rerr := tmpl.RenderString(bindings)
		if rerr == nil {
			return out
		}
		err = rerr
	}
	logger.Debug("render: falling back to plain substitution", "error", err)
	return substitute(tpl, dict)
}

func (r *Renderer) parse(src string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	r.cache.Store(src, tmpl)
	return tmpl, nil
}

// dictionary lowercases every key so lookups are case-insensitive.
// Message context wins over studio constants of the same name.
func (r *Renderer) dictionary(vars map[string]string) map[string]string {
	dict := map[string]string{
		strings.ToLower(KeyStudioName):  r.studio.Name,
		strings.ToLower(KeyStudioPhone): r.studio.Phone,
		strings.ToLower(KeySiteURL):     r.studio.SiteURL,
	}
	foldInto(dict, vars)
	return dict
}

// foldInto copies m into dst under lowercased keys. Keys of m that differ
// only by case are applied in sorted order, so the result does not depend
// on map iteration.
func foldInto(dst, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		dst[strings.ToLower(k)] = m[k]
	}
}

// substitute is the Liquid-free path. It makes one pass over tpl: bare
// placeholders are replaced from dict and any other output tag is dropped.
// Substituted values are never rescanned.
func substitute(tpl string, dict map[string]string) string {
	return outputTagRe.ReplaceAllStringFunc(tpl, func(m string) string {
		sub := outputTagRe.FindStringSubmatch(m)
		if sub[1] == "" {
			return ""
		}
		return dict[strings.ToLower(sub[1])]
	})
}

// RecipientVars returns the identity variables for r.
func RecipientVars(rc *domain.Recipient) map[string]string {
	if rc == nil {
		return map[string]string{}
	}
	return map[string]string{
		KeyName:      rc.Name,
		KeyFirstName: rc.FirstName(),
		KeyEmail:     rc.Email,
	}
}

// Merge returns a new map with later maps overriding earlier ones. Keys
// are lowercased, so a later "firstName" replaces an earlier "FirstName".
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		foldInto(out, m)
	}
	return out
}
