package orders

import "time"

type Method string

const (
	MethodPix  Method = "pix"
	MethodCard Method = "card"
)

func (m Method) Valid() bool { return m == MethodPix || m == MethodCard }

// Order maps the pedidos row exactly; the table carries no other columns.
// Valor is stored in cents.
type Order struct {
	ID            string    `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	ProductID     string    `gorm:"column:produto_id;type:char(36);not null;index:ix_pedidos_produto_id" json:"product_id"`
	Name          string    `gorm:"column:nome;type:varchar(255);not null" json:"name"`
	Email         string    `gorm:"column:email;type:varchar(255);not null" json:"email"`
	Phone         *string   `gorm:"column:telefone;type:varchar(32)" json:"phone,omitempty"`
	CPF           string    `gorm:"column:cpf;type:varchar(14);not null" json:"cpf"`
	AmountCents   int64     `gorm:"column:valor;not null" json:"amount_cents"`
	PaymentMethod Method    `gorm:"column:forma_pagamento;type:varchar(16);not null" json:"payment_method"`
	Status        Status    `gorm:"column:status;type:varchar(16);not null;index:ix_pedidos_status" json:"status"`
	CreatedAt     time.Time `gorm:"column:criado_em;precision:3;not null" json:"created_at"`
}

func (Order) TableName() string { return "pedidos" }

// OrderEvent is the audit trail of status changes.
type OrderEvent struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	OrderID    string    `gorm:"type:char(36);not null;index:ix_order_events_order_id"`
	Actor      string    `gorm:"type:varchar(64);not null"`
	Action     string    `gorm:"type:varchar(32);not null"`
	FromStatus Status    `gorm:"type:varchar(16);not null"`
	ToStatus   Status    `gorm:"type:varchar(16);not null"`
	Note       *string   `gorm:"type:varchar(255)"`
	CreatedAt  time.Time `gorm:"precision:3;not null"`
}

func (OrderEvent) TableName() string { return "order_events" }

type Buyer struct {
	Name  string
	Email string
	CPF   string
	Phone string
}
