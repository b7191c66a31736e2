package products

import "time"

// Product is the read side of the produtos table; the admin editor that
// writes it lives outside this service.
type Product struct {
	ID          string    `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	Name        string    `gorm:"column:nome;type:varchar(255);not null" json:"name"`
	Description string    `gorm:"column:descricao;type:text" json:"description"`
	PriceCents  int64     `gorm:"column:preco;not null" json:"price_cents"`
	Active      bool      `gorm:"column:ativo;not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"column:criado_em;precision:3;not null" json:"created_at"`
}

func (Product) TableName() string { return "produtos" }
