package model

type Product struct {
	ID           int64  `json:"product_id" db:"product_id"`
	Name         string `json:"product_name" db:"product_name"`
	CurrentStock int64  `json:"current_stock" db:"current_stock"`
}
