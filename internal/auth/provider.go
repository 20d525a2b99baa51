package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billpay/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken   = errors.New("a user with this email address has already been registered")
	ErrWeakPassword = errors.New("password should be at least 6 characters")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidLogin = errors.New("invalid login credentials")
)

const minPasswordChars = 6

// validate 并发安全，缓存校验规则
var validate = validator.New()

// Credential 登录凭证，保存在 auth:email:{email}
type Credential struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IdentityProvider 用户身份管理（注册、登录、注销）
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, name, phone string) (*Credential, error)
	SignIn(ctx context.Context, email, password string) (*Credential, error)
	Remove(ctx context.Context, email string) error
}

// LocalProvider 基于 KV 存储与 bcrypt 的身份提供方
type LocalProvider struct {
	store repository.Store
	cost  int
}

func NewLocalProvider(store repository.Store) *LocalProvider {
	return &LocalProvider{store: store, cost: bcrypt.DefaultCost}
}

// WithCost 调整 bcrypt 代价，测试中使用 bcrypt.MinCost
func (p *LocalProvider) WithCost(cost int) *LocalProvider {
	p.cost = cost
	return p
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password, name, phone string) (*Credential, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordChars {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	cred := &Credential{
		UserID:       uuid.NewString(),
		Email:        addr,
		PasswordHash: string(hash),
		Name:         name,
		Phone:        phone,
		CreatedAt:    time.Now().UTC(),
	}

	key := repository.CredentialKey(addr)
	err = p.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		var existing Credential
		found, err := tx.Get(key, &existing)
		if err != nil {
			return err
		}
		if found {
			return ErrEmailTaken
		}
		return tx.Set(key, cred)
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidLogin
	}

	var cred Credential
	found, err := p.store.Get(ctx, repository.CredentialKey(addr), &cred)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidLogin
	}
	return &cred, nil
}

func (p *LocalProvider) Remove(ctx context.Context, email string) error {
	addr, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	return p.store.Delete(ctx, repository.CredentialKey(addr))
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}
