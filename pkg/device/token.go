package device

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// TokenBytes is the amount of randomness in a session token (256 bits).
const TokenBytes = 32

// TokenGenerator produces session tokens.
type TokenGenerator struct {
	entropy io.Reader
	logger  *slog.Logger
}

// TokenOption configures a TokenGenerator.
type TokenOption func(*TokenGenerator)

// WithEntropy sets the random source. Defaults to crypto/rand.Reader.
func WithEntropy(r io.Reader) TokenOption {
	return func(g *TokenGenerator) {
		if r != nil {
			g.entropy = r
		}
	}
}

// WithTokenLogger sets the logger used to report entropy failures.
func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(g *TokenGenerator) {
		g.logger = logger.OrDiscard(l)
	}
}

// NewTokenGenerator creates a generator reading from crypto/rand by default.
func NewTokenGenerator(opts ...TokenOption) *TokenGenerator {
	g := &TokenGenerator{
		entropy: rand.Reader,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a hex encoded token carrying TokenBytes of randomness.
func (g *TokenGenerator) Generate() string {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(g.entropy, b); err != nil {
		g.logger.Warn("secure random source unavailable, falling back to pseudo-random token",
			logger.Component("device"),
			logger.Error(err),
		)
		fillPseudoRandom(b)
	}
	return hex.EncodeToString(b)
}

func fillPseudoRandom(b []byte) {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(seed[8:16], mrand.Uint64())
	r := mrand.NewChaCha8(seed)
	_, _ = r.Read(b)
}

var defaultGenerator = NewTokenGenerator()

// GenerateSessionToken returns a token from the default generator.
func GenerateSessionToken() string {
	return defaultGenerator.Generate()
}
