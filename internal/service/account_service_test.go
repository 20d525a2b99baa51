package service

import (
	"context"
	"testing"

	"billpay/internal/auth"
	"billpay/internal/model"
	"billpay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_InitializesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada", Phone: "0801"})
	require.NoError(t, err)
	assert.Equal(t, "Account created successfully", res.Message)
	assert.Equal(t, "ada@example.com", res.User.Email)

	cards, err := env.ledger.GetSavedCards(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.True(t, env.mr.Exists(repository.TransactionsKey(res.User.ID)))

	_, err = env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = env.accounts.Signup(ctx, &SignupRequest{Email: "bob@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	signup, err := env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	require.NoError(t, err)

	res, err := env.accounts.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, signup.User.ID, res.User.ID)

	verifier := auth.NewVerifier(env.cfg.Auth.JWTSecret, env.cfg.Auth.Issuer, env.cfg.Auth.Audience)
	userID, err := verifier.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, userID)

	_, err = env.accounts.Login(ctx, "ada@example.com", "wrong-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidLogin)
}

func TestUpdateProfile_KeepsIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	signup, err := env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	require.NoError(t, err)

	name := "Ada Lovelace"
	phone := "0802"
	updated, err := env.accounts.UpdateProfile(ctx, signup.User.ID, model.ProfileUpdate{Name: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, updated.ID)
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	assert.NotNil(t, updated.UpdatedAt)

	empty := " "
	_, err = env.accounts.UpdateProfile(ctx, signup.User.ID, model.ProfileUpdate{Name: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.accounts.UpdateProfile(ctx, "ghost", model.ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = env.accounts.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	signup, err := env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	require.NoError(t, err)

	n, err := env.accounts.DeleteAccount(ctx, signup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = env.accounts.Login(ctx, "ada@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidLogin)

	// 可以用同一邮箱重新注册
	_, err = env.accounts.Signup(ctx, &SignupRequest{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	assert.NoError(t, err)
}
