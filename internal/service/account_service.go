package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billpay/internal/auth"
	"billpay/internal/model"
	"billpay/internal/repository"

	"go.uber.org/zap"
)

// TokenIssuer 签发访问令牌
type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

type AccountService struct {
	store    repository.Store
	ledger   *LedgerService
	provider auth.IdentityProvider
	issuer   TokenIssuer
	log      *zap.Logger
}

func NewAccountService(store repository.Store, ledger *LedgerService, provider auth.IdentityProvider, issuer TokenIssuer, log *zap.Logger) *AccountService {
	return &AccountService{
		store:    store,
		ledger:   ledger,
		provider: provider,
		issuer:   issuer,
		log:      log,
	}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type SignupResult struct {
	User    model.UserProfile `json:"user"`
	Message string            `json:"message"`
}

// Signup 注册并初始化账户数据（资料、钱包、空流水、空卡列表）
func (s *AccountService) Signup(ctx context.Context, req *SignupRequest) (*SignupResult, error) {
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: email, password, and name are required", ErrValidation)
	}

	cred, err := s.provider.SignUp(ctx, req.Email, req.Password, strings.TrimSpace(req.Name), req.Phone)
	if err != nil {
		return nil, err
	}

	profile := model.UserProfile{
		ID:        cred.UserID,
		Email:     cred.Email,
		Name:      cred.Name,
		Phone:     cred.Phone,
		CreatedAt: cred.CreatedAt,
	}
	if _, err := s.ledger.InitializeAccount(ctx, profile); err != nil {
		// 账户数据写入失败时撤销凭证，允许用户重新注册
		if rmErr := s.provider.Remove(context.Background(), cred.Email); rmErr != nil {
			s.log.Error("[AccountService] 回滚凭证失败", zap.String("user_id", cred.UserID), zap.Error(rmErr))
		}
		return nil, err
	}

	s.log.Info("[AccountService] 注册成功", zap.String("user_id", cred.UserID))
	return &SignupResult{User: profile, Message: "Account created successfully"}, nil
}

type LoginResult struct {
	AccessToken string            `json:"accessToken"`
	TokenType   string            `json:"tokenType"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	User        model.UserProfile `json:"user"`
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	cred, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(cred.UserID, cred.Email)
	if err != nil {
		return nil, err
	}

	profile, err := s.GetProfile(ctx, cred.UserID)
	if errors.Is(err, ErrProfileNotFound) {
		// 资料被删除时仍允许登录，返回凭证中的基本信息
		profile = &model.UserProfile{ID: cred.UserID, Email: cred.Email, Name: cred.Name, Phone: cred.Phone, CreatedAt: cred.CreatedAt}
	} else if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        *profile,
	}, nil
}

func (s *AccountService) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	found, err := s.store.Get(ctx, repository.ProfileKey(userID), &profile)
	if err != nil {
		return nil, wrapStorage("get profile", err)
	}
	if !found {
		return nil, ErrProfileNotFound
	}
	return &profile, nil
}

// UpdateProfile 只允许修改 name / phone，id 与 email 保持不变
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.UserProfile, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidProfile)
	}

	key := repository.ProfileKey(userID)
	var updated model.UserProfile
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		var current model.UserProfile
		found, err := tx.Get(key, &current)
		if err != nil {
			return err
		}
		if !found {
			return ErrProfileNotFound
		}
		updated = current.Apply(update, time.Now().UTC())
		updated.ID = userID
		return tx.Set(key, updated)
	})
	if err != nil {
		return nil, wrapStorage("update profile", err)
	}
	return &updated, nil
}

// DeleteAccount 删除凭证与全部用户数据
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) (int64, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return 0, err
	}
	if profile != nil && profile.Email != "" {
		if err := s.provider.Remove(ctx, profile.Email); err != nil {
			return 0, wrapStorage("remove credential", err)
		}
	}
	return s.ledger.DeleteAccount(ctx, userID)
}
