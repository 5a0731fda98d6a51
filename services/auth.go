package services

import (
	"context"
	"fmt"

	"github.com/devgrupoglobalsoft/apiexec"
)

const (
	LoginPath          = "/api/auth/login"
	ForgotPasswordPath = "/api/auth/forgot-password"
	MePath             = "/api/auth/me"
)

// TokenPair is what login answers with.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Identity describes the logged in user.
type Identity struct {
	Subject string  `json:"subject"`
	Tenant  string  `json:"tenant"`
	Expiry  float64 `json:"exp"`
}

// Auth is the only service that writes a session directly; every other
// session change goes through the token coordinator.
type Auth struct {
	exec *apiexec.Executor
}

func NewAuth(exec *apiexec.Executor) *Auth {
	return &Auth{exec: exec}
}

// Login exchanges credentials for a session and stores it. Wrong
// credentials come back as a KindValidation error with the server message.
func (a *Auth) Login(ctx context.Context, username, password string, opts ...apiexec.CallOption) (apiexec.AuthSession, error) {
	opts = append([]apiexec.CallOption{apiexec.Anonymous()}, opts...)
	resp, err := apiexec.Create[TokenPair](ctx, a.exec, LoginPath, Credentials{Username: username, Password: password}, opts...)
	if err != nil {
		return apiexec.AuthSession{}, err
	}
	if resp.Data.AccessToken == "" {
		return apiexec.AuthSession{}, &apiexec.Error{Kind: apiexec.KindUnknown, Message: "login answered without an access token", StatusCode: resp.StatusCode}
	}

	session := apiexec.AuthSession{AccessToken: resp.Data.AccessToken, RefreshToken: resp.Data.RefreshToken}
	if err := a.exec.SetSession(session); err != nil {
		return apiexec.AuthSession{}, fmt.Errorf("storing session: %w", err)
	}
	return session, nil
}

func (a *Auth) Logout() error {
	return a.exec.Logout()
}

// RequestPasswordReset starts the password reset flow for email.
func (a *Auth) RequestPasswordReset(ctx context.Context, email string) (*apiexec.Response[string], error) {
	body := map[string]string{"email": email}
	return apiexec.Create[string](ctx, a.exec, ForgotPasswordPath, body, apiexec.Anonymous())
}

// Me always asks the server, so a revoked session shows up at once.
func (a *Auth) Me(ctx context.Context) (*apiexec.Response[Identity], error) {
	return apiexec.Fetch[Identity](ctx, a.exec, MePath, apiexec.NoCache())
}
