package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/joho/godotenv"

	"github.com/petrijr/botflow/pkg/api"
)

// StaticTokens resolves tokens from a fixed map of bot id to token.
type StaticTokens map[string]string

var _ api.TokenResolver = StaticTokens(nil)

func (m StaticTokens) ResolveToken(_ context.Context, botID string) (string, error) {
	if tok, ok := m[botID]; ok && tok != "" {
		return tok, nil
	}
	return "", api.ErrTokenNotFound
}

// EnvTokens resolves tokens from environment variables named
// <Prefix><BOT_ID>. Values from dotenv files are consulted after the process
// environment and never exported into it.
type EnvTokens struct {
	Prefix string

	dotenv map[string]string
	lookup func(string) (string, bool)
}

var _ api.TokenResolver = (*EnvTokens)(nil)

// NewEnvTokens builds an EnvTokens. Missing dotenv files are skipped; a file
// that exists but cannot be parsed is an error.
func NewEnvTokens(prefix string, dotenvFiles ...string) (*EnvTokens, error) {
	r := &EnvTokens{Prefix: prefix, dotenv: map[string]string{}, lookup: os.LookupEnv}
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		vals, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := r.dotenv[k]; !seen {
				r.dotenv[k] = v
			}
		}
	}
	return r, nil
}

// EnvKey returns the variable name holding the token of botID: the prefix
// followed by the upper-cased id with every non-alphanumeric rune replaced
// by an underscore.
func EnvKey(prefix, botID string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range botID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (r *EnvTokens) ResolveToken(_ context.Context, botID string) (string, error) {
	key := EnvKey(r.Prefix, botID)
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	if v := strings.TrimSpace(r.dotenv[key]); v != "" {
		return v, nil
	}
	return "", api.ErrTokenNotFound
}

// ChainTokens asks each resolver in turn and returns the first token found.
// Errors other than api.ErrTokenNotFound stop the chain.
type ChainTokens []api.TokenResolver

var _ api.TokenResolver = ChainTokens(nil)

func (c ChainTokens) ResolveToken(ctx context.Context, botID string) (string, error) {
	for _, r := range c {
		tok, err := r.ResolveToken(ctx, botID)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, api.ErrTokenNotFound) {
			return "", err
		}
	}
	return "", api.ErrTokenNotFound
}
