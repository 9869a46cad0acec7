package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
	sweepEvery   = 10 * time.Minute
)

// Notice reasons
const (
	ReasonTokensPerMinute   = "tokens_per_minute"
	ReasonRequestsPerMinute = "requests_per_minute"
	ReasonDailyLimit        = "daily_limit"
)

// EstimateRequestTokens is the pre-send estimate used by the budget: the
// message plus the full history text, at four characters per token. It is
// independent from the transport's post-hoc count and not reconciled with it.
func EstimateRequestTokens(message string, history []ChatTurn) int {
	total := EstimateTokens(message)
	for _, turn := range history {
		total += EstimateTokens(turn.Content)
	}
	return total
}

// Budget is an advisory, process-local limiter keyed by client and mode.
// The upstream provider remains the authority on real limits.
type Budget struct {
	entries   map[string]*budgetEntry
	now       func() time.Time
	lastSweep time.Time
	mu        sync.Mutex
}

// fixedWindow counts usage inside a window that resets wholesale
type fixedWindow struct {
	start time.Time
	used  int
}

func (w *fixedWindow) roll(now time.Time, size time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= size {
		w.start = now
		w.used = 0
	}
}

func (w *fixedWindow) retryAfter(now time.Time, size time.Duration) time.Duration {
	return w.start.Add(size).Sub(now)
}

type budgetEntry struct {
	tokens   fixedWindow
	requests fixedWindow
	daily    fixedWindow
}

// BudgetOption configures a Budget
type BudgetOption func(*Budget)

// WithBudgetClock overrides time.Now, for tests
func WithBudgetClock(now func() time.Time) BudgetOption {
	return func(b *Budget) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBudget creates an empty budget
func NewBudget(opts ...BudgetOption) *Budget {
	b := &Budget{
		entries: make(map[string]*budgetEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Admit checks the request against the mode's limits and, when allowed,
// charges it. A non-nil Notice means the request must not be sent.
func (b *Budget) Admit(clientKey, modeID string, mode ModeConfig, estimate int) *Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sweep(now)

	entry := b.entry(clientKey + "|" + modeID)
	entry.tokens.roll(now, minuteWindow)
	entry.requests.roll(now, minuteWindow)
	entry.daily.roll(now, dayWindow)

	if mode.DailyLimit != nil && entry.daily.used >= *mode.DailyLimit {
		return newNotice(ReasonDailyLimit, modeID, entry.daily.retryAfter(now, dayWindow))
	}
	if mode.PerMinuteLimit > 0 && entry.requests.used >= mode.PerMinuteLimit {
		return newNotice(ReasonRequestsPerMinute, modeID, entry.requests.retryAfter(now, minuteWindow))
	}
	// The first request of a window is always admitted so a single large
	// prompt cannot lock a client out for good.
	if mode.TokensPerMinute > 0 && entry.tokens.used > 0 && entry.tokens.used+estimate > mode.TokensPerMinute {
		return newNotice(ReasonTokensPerMinute, modeID, entry.tokens.retryAfter(now, minuteWindow))
	}

	entry.daily.used++
	entry.requests.used++
	entry.tokens.used += estimate
	return nil
}

// Reset forgets all usage for a client
func (b *Budget) Reset(clientKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := clientKey + "|"
	for key := range b.entries {
		if strings.HasPrefix(key, prefix) {
			delete(b.entries, key)
		}
	}
}

func (b *Budget) entry(key string) *budgetEntry {
	entry, ok := b.entries[key]
	if !ok {
		entry = &budgetEntry{}
		b.entries[key] = entry
	}
	return entry
}

// sweep drops entries whose daily window has lapsed
func (b *Budget) sweep(now time.Time) {
	if now.Sub(b.lastSweep) < sweepEvery {
		return
	}
	b.lastSweep = now
	for key, entry := range b.entries {
		if now.Sub(entry.daily.start) >= dayWindow {
			delete(b.entries, key)
		}
	}
}

func newNotice(reason, modeID string, retryAfter time.Duration) *Notice {
	if retryAfter < 0 {
		retryAfter = 0
	}
	seconds := int((retryAfter + time.Second - 1) / time.Second)

	var message string
	switch reason {
	case ReasonDailyLimit:
		message = fmt.Sprintf("You've reached today's limit for %s mode. Try another mode or come back later.", modeID)
	default:
		message = fmt.Sprintf("You're sending messages too quickly in %s mode. Please wait %ds and try again.", modeID, seconds)
	}

	return &Notice{Reason: reason, Message: message, RetryAfter: retryAfter}
}
