package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// ErrConfirmationPending is returned by SignUp when the provider requires
// email confirmation before issuing a session.
var ErrConfirmationPending = errors.New("check your email to confirm the account")

// Provider performs sign-in against the identity service.
type Provider interface {
	SendMagicLink(ctx context.Context, email string) error
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresher
}

// SupabaseProvider talks to Supabase Auth. Calls are made on per-request
// copies of the client so tokens never leak between users.
type SupabaseProvider struct {
	client gotrue.Client
	now    func() time.Time
}

func NewSupabaseProvider(client gotrue.Client) *SupabaseProvider {
	return &SupabaseProvider{client: client, now: time.Now}
}

func (p *SupabaseProvider) SendMagicLink(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.client.OTP(types.OTPRequest{Email: strings.TrimSpace(email), CreateUser: true})
}

func (p *SupabaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := p.client.SignInWithEmailPassword(strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	return p.session(token.Session), nil
}

func (p *SupabaseProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.Signup(types.SignupRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, ErrConfirmationPending
	}
	return p.session(resp.Session), nil
}

func (p *SupabaseProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := p.client.RefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	return p.session(token.Session), nil
}

func (p *SupabaseProvider) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if accessToken == "" {
		return nil
	}
	return p.client.WithToken(accessToken).Logout()
}

func (p *SupabaseProvider) session(s types.Session) *Session {
	out := &Session{
		UserID:       s.User.ID.String(),
		Email:        s.User.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = p.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}

var _ Provider = (*SupabaseProvider)(nil)
