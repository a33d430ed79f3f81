package currencies

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var ErrUnknownCurrency = errors.New("unknown currency")

const DefaultCode = "EUR"

type Currency struct {
	ID     string `gorm:"type:char(36);primaryKey"`
	Code   string `gorm:"type:char(3);not null;uniqueIndex:ux_currencies_code"`
	Symbol string `gorm:"type:varchar(8);not null"`
}

func (Currency) TableName() string { return "currencies" }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) ByCode(ctx context.Context, code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var c Currency
	err := r.db.WithContext(ctx).First(&c, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Currency{}, ErrUnknownCurrency
	}
	return c, err
}

func (r *Repo) Default(ctx context.Context) (Currency, error) {
	return r.ByCode(ctx, DefaultCode)
}
