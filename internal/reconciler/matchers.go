package reconciler

import (
	"context"
	"regexp"

	"certflow/internal/thirdparty"
	"certflow/pkg/domain"
	"certflow/pkg/email"
	pstrings "certflow/pkg/platform/strings"
)

// Strategy names a match path in the run summary breakdown.
type Strategy string

const (
	StrategyPlus   Strategy = "plus"
	StrategyThread Strategy = "thread"
	StrategyToken  Strategy = "token"
)

// Requests is the slice of third-party operations the reconciler needs.
type Requests interface {
	FindByToken(ctx context.Context, token string) (*thirdparty.Request, domain.PartyRole, error)
	FindByOutboundMessageID(ctx context.Context, messageID string) (*thirdparty.Request, domain.PartyRole, error)
	MarkVerified(ctx context.Context, req *thirdparty.Request, role domain.PartyRole, excerpt string) error
}

type match struct {
	req      *thirdparty.Request
	role     domain.PartyRole
	strategy Strategy
}

// referenceCodePattern matches the textual reference code embedded in
// outbound bodies. Tokens are url-safe base64.
var referenceCodePattern = regexp.MustCompile(`tpr-([A-Za-z0-9_-]{20,})`)

// matchMessage tries the three strategies in strict priority order and
// stops at the first hit.
func (r *Reconciler) matchMessage(ctx context.Context, msg Message) (match, bool) {
	if m, ok := r.matchPlusAddress(ctx, msg); ok {
		return m, true
	}
	if m, ok := r.matchThread(ctx, msg); ok {
		return m, true
	}
	return r.matchReferenceCode(ctx, msg)
}

// matchPlusAddress extracts a +tpr-<token> segment from the recipient
// headers. The highest-confidence signal: the token traveled in the
// reply's own routing.
func (r *Reconciler) matchPlusAddress(ctx context.Context, msg Message) (match, bool) {
	recipients := make([]string, 0, len(msg.To)+len(msg.DeliveredTo)+len(msg.Cc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.DeliveredTo...)
	recipients = append(recipients, msg.Cc...)

	// Tokens in the local part are case sensitive, so no lowercasing here.
	for _, addr := range pstrings.DedupeAndTrim(recipients) {
		token, ok := email.ExtractPlusToken(addr)
		if !ok {
			continue
		}
		if req, role, err := r.requests.FindByToken(ctx, token); err == nil {
			return match{req: req, role: role, strategy: StrategyPlus}, true
		}
	}
	return match{}, false
}

// matchThread correlates In-Reply-To and References against recorded
// outbound message identifiers.
func (r *Reconciler) matchThread(ctx context.Context, msg Message) (match, bool) {
	candidates := make([]string, 0, 1+len(msg.References))
	candidates = append(candidates, msg.InReplyTo)
	candidates = append(candidates, msg.References...)

	for _, id := range pstrings.DedupeAndTrim(candidates) {
		if req, role, err := r.requests.FindByOutboundMessageID(ctx, id); err == nil {
			return match{req: req, role: role, strategy: StrategyThread}, true
		}
	}
	return match{}, false
}

// matchReferenceCode scans subject and body for an embedded reference
// code. Lowest confidence: the code survived a quoted reply.
func (r *Reconciler) matchReferenceCode(ctx context.Context, msg Message) (match, bool) {
	for _, text := range []string{msg.Subject, msg.Body} {
		for _, groups := range referenceCodePattern.FindAllStringSubmatch(text, -1) {
			if req, role, err := r.requests.FindByToken(ctx, groups[1]); err == nil {
				return match{req: req, role: role, strategy: StrategyToken}, true
			}
		}
	}
	return match{}, false
}
