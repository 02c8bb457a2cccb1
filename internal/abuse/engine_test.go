package abuse

import (
	"context"
	"testing"
	"time"

	"vixogram/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vixogram/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatMsgRateLimit:     5,
		ChatMsgRatePeriod:    10,
		DuplicateMsgTTL:      30,
		EmojiSpamMinRepeats:  5,
		EmojiSpamTTL:         60,
		PasteLongMsgLen:      120,
		PasteTypedMsMax:      800,
		TypingCPSThreshold:   35.0,
		FastLongMsgLen:       100,
		FastLongMinInterval:  5,
		AbuseWindow:          60,
		AbuseStrikeThreshold: 3,
		AbuseMuteSeconds:     300,
	}
}

func setupEngine(t *testing.T) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })
	return NewEngine(testConfig()), mr
}

func TestCheckRateLimit(t *testing.T) {
	eng, mr := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := eng.CheckRateLimit(ctx, "chat_msg:lobby:1", 5, 10*time.Second)
		assert.True(t, res.Allowed, "attempt %d should pass", i+1)
	}

	res := eng.CheckRateLimit(ctx, "chat_msg:lobby:1", 5, 10*time.Second)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	mr.FastForward(11 * time.Second)
	res = eng.CheckRateLimit(ctx, "chat_msg:lobby:1", 5, 10*time.Second)
	assert.True(t, res.Allowed)
}

func TestCheckRateLimitFailsOpenWithoutRedis(t *testing.T) {
	cache.SetClient(nil)
	eng := NewEngine(testConfig())

	res := eng.CheckRateLimit(context.Background(), "x", 1, time.Second)
	assert.True(t, res.Allowed)
	res = eng.CheckRateLimit(context.Background(), "x", 1, time.Second)
	assert.True(t, res.Allowed)
}

func TestIsDuplicateMessage(t *testing.T) {
	eng, mr := setupEngine(t)
	ctx := context.Background()

	dup, _ := eng.IsDuplicateMessage(ctx, "lobby", 1, "hi")
	assert.False(t, dup)

	dup, retry := eng.IsDuplicateMessage(ctx, "lobby", 1, "hi")
	assert.True(t, dup)
	assert.Greater(t, retry, time.Duration(0))

	// Whitespace collapse and case folding hash to the same key.
	dup, _ = eng.IsDuplicateMessage(ctx, "lobby", 1, "  HI  ")
	assert.True(t, dup)

	// A different user or room is never a duplicate.
	dup, _ = eng.IsDuplicateMessage(ctx, "lobby", 2, "hi")
	assert.False(t, dup)
	dup, _ = eng.IsDuplicateMessage(ctx, "other", 1, "hi")
	assert.False(t, dup)

	mr.FastForward(31 * time.Second)
	dup, _ = eng.IsDuplicateMessage(ctx, "lobby", 1, "hi")
	assert.False(t, dup)
}

func TestNormalizeBody(t *testing.T) {
	assert.Equal(t, "hello world", NormalizeBody("  Hello   WORLD \n"))
	assert.Equal(t, "", NormalizeBody("   "))
}

func TestIsSameEmojiSpam(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	// First occurrence arms the throttle, second trips it.
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 1, "🔥🔥🔥🔥🔥"))
	assert.True(t, eng.IsSameEmojiSpam(ctx, "lobby", 1, "🔥🔥🔥🔥🔥"))

	// Below the repeat floor, or non-emoji content, never matches.
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 2, "🔥🔥🔥"))
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 2, "aaaaaaa"))
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 2, "🔥🔥🔥🔥❤️"))
}

func TestIsSameEmojiSpamComposedGraphemes(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	// Multi-codepoint emoji (heart + variation selector) count as one
	// grapheme each.
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 3, "❤️❤️❤️❤️❤️"))
	assert.True(t, eng.IsSameEmojiSpam(ctx, "lobby", 3, "❤️❤️❤️❤️❤️"))

	// Skin-tone modified emoji are single graphemes too.
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 4, "👍🏽👍🏽👍🏽👍🏽👍🏽"))
	assert.True(t, eng.IsSameEmojiSpam(ctx, "lobby", 4, "👍🏽👍🏽👍🏽👍🏽👍🏽"))

	// Mixed composed emoji are not "same emoji" spam.
	assert.False(t, eng.IsSameEmojiSpam(ctx, "lobby", 5, "❤️❤️❤️❤️🔥"))
}

func TestIsFastLongMessage(t *testing.T) {
	eng, mr := setupEngine(t)
	ctx := context.Background()

	assert.False(t, eng.IsFastLongMessage(ctx, "lobby", 1, 150))
	assert.True(t, eng.IsFastLongMessage(ctx, "lobby", 1, 150))

	// Short messages never arm or trip the check.
	assert.False(t, eng.IsFastLongMessage(ctx, "lobby", 2, 50))
	assert.False(t, eng.IsFastLongMessage(ctx, "lobby", 2, 50))

	mr.FastForward(6 * time.Second)
	assert.False(t, eng.IsFastLongMessage(ctx, "lobby", 1, 150))
}

func TestIsSuspiciousTypingSpeed(t *testing.T) {
	eng := NewEngine(testConfig())
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}

	// Paste detection: long body typed near-instantly.
	assert.True(t, eng.IsSuspiciousTypingSpeed(string(long), 500))
	// Same body over 20 seconds is fine.
	assert.False(t, eng.IsSuspiciousTypingSpeed(string(long), 20000))

	// CPS detection: 40 chars in 1s = 40 cps.
	assert.True(t, eng.IsSuspiciousTypingSpeed(string(long[:40]), 1000))
	assert.False(t, eng.IsSuspiciousTypingSpeed(string(long[:40]), 2000))

	// Short bodies and missing measurements never flag.
	assert.False(t, eng.IsSuspiciousTypingSpeed("hi", 1))
	assert.False(t, eng.IsSuspiciousTypingSpeed(string(long), 0))
	assert.False(t, eng.IsSuspiciousTypingSpeed(string(long), -5))
}

func TestRecordViolationAutoMute(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	strikes, mute := eng.RecordViolation(ctx, "duplicate", 1, "lobby", 1)
	assert.Equal(t, int64(1), strikes)
	assert.Zero(t, mute)

	strikes, mute = eng.RecordViolation(ctx, "duplicate", 1, "lobby", 1)
	assert.Equal(t, int64(2), strikes)
	assert.Zero(t, mute)

	strikes, mute = eng.RecordViolation(ctx, "duplicate", 1, "lobby", 1)
	assert.Equal(t, int64(3), strikes)
	assert.Equal(t, 300*time.Second, mute)

	remaining := eng.MutedFor(ctx, 1)
	assert.Greater(t, remaining, 290*time.Second)
}

func TestRecordViolationWeight(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	// Weight 2 crosses a threshold of 3 in two calls.
	strikes, mute := eng.RecordViolation(ctx, "moderation", 2, "lobby", 2)
	assert.Equal(t, int64(2), strikes)
	assert.Zero(t, mute)

	strikes, mute = eng.RecordViolation(ctx, "moderation", 2, "lobby", 2)
	assert.Equal(t, int64(4), strikes)
	assert.Equal(t, 300*time.Second, mute)
}

func TestSetMutedNeverShortens(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.SetMuted(ctx, 1, 10*time.Minute))
	require.NoError(t, eng.SetMuted(ctx, 1, time.Minute))
	assert.Greater(t, eng.MutedFor(ctx, 1), 9*time.Minute)

	require.NoError(t, eng.Unmute(ctx, 1))
	assert.Zero(t, eng.MutedFor(ctx, 1))
}
