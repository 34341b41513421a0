package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/you/oobauthsvc/domain"
	"gorm.io/gorm"
)

// UserRepositoryImpl implements domain.UserRepository using GORM
type UserRepositoryImpl struct {
	db *gorm.DB
}

// DBUser represents the database model for User (with GORM tags)
type DBUser struct {
	ID         uint           `gorm:"primaryKey"`
	Email      string         `gorm:"uniqueIndex;size:255"`
	Phone      string         `gorm:"index;size:32"`
	TelegramID int64          `gorm:"index"`
	Role       string         `gorm:"index;size:64"`
	IsActive   bool           `gorm:"index"`
	CreatedAt  time.Time      `gorm:"index"`
	UpdatedAt  time.Time      `gorm:"index"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// DBAccount represents the database model for the subscriber account
type DBAccount struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Number    string `gorm:"uniqueIndex;size:32"`
	Tariff    string `gorm:"size:64"`
	Suspended bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (DBAccount) TableName() string {
	return "accounts"
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &UserRepositoryImpl{db: db}
}

// FindByID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// FindByPhone implements domain.UserRepository. Phone numbers are stored in
// normalized form (digits only, country prefix 7).
func (r *UserRepositoryImpl) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// FindByTelegramID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// LinkTelegram implements domain.UserRepository (idempotent)
func (r *UserRepositoryImpl) LinkTelegram(ctx context.Context, userID uint, telegramID int64) error {
	return r.db.WithContext(ctx).Model(&DBUser{}).Where("id = ?", userID).Update("telegram_id", telegramID).Error
}

// LinkPhone implements domain.UserRepository (idempotent)
func (r *UserRepositoryImpl) LinkPhone(ctx context.Context, userID uint, phone string) error {
	return r.db.WithContext(ctx).Model(&DBUser{}).Where("id = ?", userID).Update("phone", phone).Error
}

// dbToDomain converts database user to domain user
func (r *UserRepositoryImpl) dbToDomain(dbUser *DBUser) *domain.User {
	return &domain.User{
		ID:         dbUser.ID,
		Email:      dbUser.Email,
		Phone:      dbUser.Phone,
		TelegramID: dbUser.TelegramID,
		Role:       dbUser.Role,
		IsActive:   dbUser.IsActive,
		CreatedAt:  dbUser.CreatedAt,
		UpdatedAt:  dbUser.UpdatedAt,
	}
}

// AccountRepositoryImpl implements domain.AccountRepository using GORM
type AccountRepositoryImpl struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &AccountRepositoryImpl{db: db}
}

// FindByUserID implements domain.AccountRepository
func (r *AccountRepositoryImpl) FindByUserID(ctx context.Context, userID uint) (*domain.Account, error) {
	var dbAcc DBAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&dbAcc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &domain.Account{
		ID:        dbAcc.ID,
		UserID:    dbAcc.UserID,
		Number:    dbAcc.Number,
		Tariff:    dbAcc.Tariff,
		Suspended: dbAcc.Suspended,
	}, nil
}
