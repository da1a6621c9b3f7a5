package auth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
)

// UserHandle is the resolved identity attached to a request once AuthGate
// succeeds.
type UserHandle struct {
	UserID   ids.UserID
	Timezone string
}

// Gate verifies Authorization: Basic telegram_id:password against
// per-device Argon2id hashes. Grounded on the teacher's BasicAuth flow
// (split header on the first space, base64-decode, split credentials on
// the first colon so passwords containing ':' decode correctly).
type Gate struct {
	Store              store.Store
	Logger             zerolog.Logger
	MaxDevicePasswords int
}

func NewGate(s store.Store, maxDevicePasswords int, logger zerolog.Logger) *Gate {
	if maxDevicePasswords <= 0 {
		maxDevicePasswords = 5
	}
	return &Gate{Store: s, Logger: logger, MaxDevicePasswords: maxDevicePasswords}
}

// Authenticate parses header and verifies it against the user's most
// recently used device passwords. It returns dom.Unauthenticated for
// every failure mode (bad header, unknown user, no password match) so the
// caller cannot distinguish "no such user" from "wrong password" on the
// wire — and, per spec.md §9's open-question decision, treats a
// soft-deleted user identically to an unknown one.
func (g *Gate) Authenticate(ctx context.Context, header string) (*UserHandle, error) {
	if header == "" {
		return nil, dom.New(dom.Unauthenticated, "missing credentials")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return nil, dom.New(dom.Unauthenticated, "unsupported auth scheme")
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, dom.New(dom.Unauthenticated, "malformed credentials")
	}
	// Split on the first colon only: device passwords may themselves
	// contain ':' (spec.md §8's password-with-colon scenario).
	creds := strings.SplitN(string(decoded), ":", 2)
	if len(creds) != 2 {
		return nil, dom.New(dom.Unauthenticated, "malformed credentials")
	}
	username, password := creds[0], creds[1]

	userID, err := ids.ParseUserID(username)
	if err != nil {
		return nil, dom.New(dom.Unauthenticated, "malformed credentials")
	}

	user, err := g.Store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, dom.New(dom.Unauthenticated, "invalid credentials")
	}

	devicePasswords, err := g.Store.ListDevicePasswords(ctx, userID, g.MaxDevicePasswords)
	if err != nil {
		return nil, dom.New(dom.Unauthenticated, "invalid credentials")
	}
	for _, dp := range devicePasswords {
		ok, verr := VerifyPassword(dp.PasswordHash, password)
		if verr != nil {
			g.Logger.Warn().Err(verr).Str("device_password_id", dp.ID.String()).Msg("malformed device password hash")
			continue
		}
		if ok {
			if err := g.Store.TouchDevicePassword(ctx, dp.ID); err != nil {
				g.Logger.Warn().Err(err).Msg("failed to update device password last_used_at")
			}
			return &UserHandle{UserID: userID, Timezone: user.Timezone}, nil
		}
	}
	return nil, dom.New(dom.Unauthenticated, "invalid credentials")
}
