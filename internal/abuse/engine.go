// Package abuse implements the layered anti-spam pipeline: fixed-window
// rate limits, duplicate and emoji-spam detection, typing-speed heuristics,
// and windowed strike accumulation with auto-mute.
package abuse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/rivo/uniseg"

	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/observability"
)

// RateResult is the outcome of a fixed-window rate check.
type RateResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Engine evaluates abuse heuristics against short-TTL cache state.
// Cache outages degrade to "allowed" so a Redis blip never mutes the site.
type Engine struct {
	cfg *config.Config
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// CheckRateLimit runs a fixed-window counter on key. The window starts at
// the first hit; crossing the limit denies with the window's remaining TTL.
func (e *Engine) CheckRateLimit(ctx context.Context, key string, limit int, period time.Duration) RateResult {
	count, remaining, err := cache.IncrWindow(ctx, key, period)
	if err != nil {
		// Fail open on cache errors.
		return RateResult{Allowed: true, Remaining: int64(limit)}
	}
	if count > int64(limit) {
		return RateResult{Allowed: false, RetryAfter: remaining}
	}
	return RateResult{Allowed: true, Remaining: int64(limit) - count}
}

// NormalizeBody folds case and collapses whitespace so trivial variations
// of the same message hash identically.
func NormalizeBody(body string) string {
	return strings.Join(strings.Fields(strings.ToLower(body)), " ")
}

func bodyHash(body string) string {
	sum := sha256.Sum256([]byte(NormalizeBody(body)))
	return hex.EncodeToString(sum[:8])
}

// IsDuplicateMessage reports whether the same normalized body was sent by
// this (room, user) within the dedup TTL. The TTL is fixed from the first
// write; repeats do not extend it.
func (e *Engine) IsDuplicateMessage(ctx context.Context, room string, userID uint, body string) (bool, time.Duration) {
	if strings.TrimSpace(body) == "" {
		return false, 0
	}
	key := cache.DuplicateKey(room, userID, bodyHash(body))
	ttl := time.Duration(e.cfg.DuplicateMsgTTL) * time.Second
	created, err := cache.AddIfAbsent(ctx, key, "1", ttl)
	if err != nil {
		return false, 0
	}
	if created {
		return false, 0
	}
	retry, _ := cache.RemainingTTL(ctx, key)
	if retry <= 0 {
		retry = time.Second
	}
	return true, retry
}

// IsSameEmojiSpam reports whether the body is one emoji grapheme repeated
// at least MinRepeats times, throttled per (room, user).
func (e *Engine) IsSameEmojiSpam(ctx context.Context, room string, userID uint, body string) bool {
	if !isRepeatedEmoji(body, e.cfg.EmojiSpamMinRepeats) {
		return false
	}
	key := cache.EmojiSpamKey(room, userID)
	ttl := time.Duration(e.cfg.EmojiSpamTTL) * time.Second
	created, err := cache.AddIfAbsent(ctx, key, "1", ttl)
	if err != nil {
		return false
	}
	return !created
}

// isRepeatedEmoji checks for emoji-only content made of >= minRepeats
// identical graphemes. Comparison runs on grapheme clusters, not runes, so
// composed emoji (variation selectors, skin tones, flags) count as one unit.
func isRepeatedEmoji(body string, minRepeats int) bool {
	body = strings.TrimSpace(body)
	if body == "" {
		return false
	}
	var first string
	count := 0
	state := -1
	for rest := body; len(rest) > 0; {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if first == "" {
			first = cluster
			if !isEmojiRune([]rune(cluster)[0]) {
				return false
			}
		} else if cluster != first {
			return false
		}
		count++
	}
	return count >= minRepeats
}

func isEmojiRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
		return false
	}
	return unicode.IsSymbol(r) || r >= 0x1F000
}

// IsFastLongMessage flags a long message sent within MinInterval of the
// previous long message for the same (room, user).
func (e *Engine) IsFastLongMessage(ctx context.Context, room string, userID uint, length int) bool {
	if length < e.cfg.FastLongMsgLen {
		return false
	}
	key := cache.FastLongKey(room, userID)
	ttl := time.Duration(e.cfg.FastLongMinInterval) * time.Second
	created, err := cache.AddIfAbsent(ctx, key, "1", ttl)
	if err != nil {
		return false
	}
	return !created
}

// IsSuspiciousTypingSpeed evaluates the client-reported typing duration.
// typedMs <= 0 means the client sent no measurement and is never flagged.
func (e *Engine) IsSuspiciousTypingSpeed(body string, typedMs int) bool {
	if typedMs <= 0 {
		return false
	}
	length := len([]rune(body))
	if length >= e.cfg.PasteLongMsgLen && typedMs <= e.cfg.PasteTypedMsMax {
		return true
	}
	seconds := float64(typedMs) / 1000.0
	if seconds < 0.001 {
		seconds = 0.001
	}
	cps := float64(length) / seconds
	return length >= 20 && cps >= e.cfg.TypingCPSThreshold
}

// RecordViolation adds weighted strikes for (scope, user, room) within the
// abuse window. Crossing the threshold applies an auto-mute and returns the
// mute duration; otherwise the returned duration is zero.
func (e *Engine) RecordViolation(ctx context.Context, scope string, userID uint, room string, weight int) (int64, time.Duration) {
	if weight < 1 {
		weight = 1
	}
	key := cache.StrikeKey(scope, userID, room)
	window := time.Duration(e.cfg.AbuseWindow) * time.Second

	var strikes int64
	var err error
	for i := 0; i < weight; i++ {
		strikes, _, err = cache.IncrWindow(ctx, key, window)
		if err != nil {
			// Strike accumulation is best-effort.
			return 0, 0
		}
	}
	observability.AbuseStrikes.WithLabelValues(scope).Add(float64(weight))

	if strikes < int64(e.cfg.AbuseStrikeThreshold) {
		return strikes, 0
	}

	mute := time.Duration(e.cfg.AbuseMuteSeconds) * time.Second
	if err := e.SetMuted(ctx, userID, mute); err != nil {
		observability.Logger.Warn("failed to set auto-mute",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("scope", scope),
			slog.String("error", err.Error()),
		)
		return strikes, 0
	}
	observability.AutoMutes.Inc()
	observability.Logger.Info("auto-mute applied",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("scope", scope),
		slog.String("room", room),
		slog.Int64("strikes", strikes),
		slog.Duration("mute", mute),
	)
	return strikes, mute
}

// MutedFor returns the remaining mute for the user, zero when not muted.
func (e *Engine) MutedFor(ctx context.Context, userID uint) time.Duration {
	ttl, err := cache.RemainingTTL(ctx, cache.MuteKey(userID))
	if err != nil {
		return 0
	}
	return ttl
}

// SetMuted mutes the user for the given duration. It only ever extends an
// existing mute, never shortens one.
func (e *Engine) SetMuted(ctx context.Context, userID uint, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	key := cache.MuteKey(userID)
	current, err := cache.RemainingTTL(ctx, key)
	if err == nil && current >= d {
		return nil
	}
	return cache.SetWithTTL(ctx, key, "1", d)
}

// Unmute clears any active mute for the user.
func (e *Engine) Unmute(ctx context.Context, userID uint) error {
	return cache.Delete(ctx, cache.MuteKey(userID))
}
