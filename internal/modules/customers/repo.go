package customers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("customer not found")

type Customer struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	PublicID  string    `gorm:"type:varchar(40);not null;uniqueIndex:ux_customers_public_id"`
	Email     string    `gorm:"type:varchar(255);not null"`
	Company   *string   `gorm:"type:varchar(255)"`
	B2B       bool      `gorm:"column:is_b2b;not null;default:false"`
	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Customer) TableName() string { return "customers" }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) ByID(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *Repo) ByPublicID(ctx context.Context, publicID string) (Customer, error) {
	var c Customer
	err := r.db.WithContext(ctx).First(&c, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, ErrNotFound
	}
	return c, err
}
