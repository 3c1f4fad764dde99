package inquiries

import (
	"strings"
	"time"
)

// ContactRequest is a submitted contact form.
type ContactRequest struct {
	ID         string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Salutation string    `gorm:"column:salutation;size:16;not null" json:"salutation"`
	Company    string    `gorm:"column:company;size:200" json:"company"`
	FirstName  string    `gorm:"column:first_name;size:100;not null" json:"first_name"`
	LastName   string    `gorm:"column:last_name;size:100;not null" json:"last_name"`
	Email      string    `gorm:"column:email;size:254;not null" json:"email"`
	Phone      string    `gorm:"column:phone;size:50;not null" json:"phone"`
	Message    string    `gorm:"column:message;type:text" json:"message"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

// TableName binds ContactRequest to its table.
func (ContactRequest) TableName() string {
	return "contact_requests"
}

// FullName joins first and last name.
func (c ContactRequest) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ContactRequestNote is an append-only admin annotation on a contact request.
type ContactRequestNote struct {
	ID               string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	ContactRequestID string    `gorm:"column:contact_request_id;size:64;not null;index" json:"contact_request_id"`
	NoteText         string    `gorm:"column:note_text;type:text;not null" json:"note_text"`
	CreatedAt        time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName binds ContactRequestNote to its table.
func (ContactRequestNote) TableName() string {
	return "contact_request_notes"
}

// Order is a submitted heating-oil order or quote request.
type Order struct {
	ID             string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	Salutation     string      `gorm:"column:salutation;size:16;not null" json:"salutation"`
	Company        string      `gorm:"column:company;size:200" json:"company"`
	FirstName      string      `gorm:"column:first_name;size:100;not null" json:"first_name"`
	LastName       string      `gorm:"column:last_name;size:100;not null" json:"last_name"`
	Email          string      `gorm:"column:email;size:254;not null" json:"email"`
	Phone          string      `gorm:"column:phone;size:50;not null" json:"phone"`
	Street         string      `gorm:"column:street;size:200;not null" json:"street"`
	PostalCode     string      `gorm:"column:postal_code;size:5;not null" json:"postal_code"`
	City           string      `gorm:"column:city;size:100;not null" json:"city"`
	Product        string      `gorm:"column:product;size:64;not null" json:"product"`
	Quantity       int         `gorm:"column:quantity;not null" json:"quantity"`
	DeliveryPoints int         `gorm:"column:delivery_points;not null" json:"delivery_points"`
	DeliveryTime   string      `gorm:"column:delivery_time;size:32;not null" json:"delivery_time"`
	Message        string      `gorm:"column:message;type:text" json:"message"`
	Status         OrderStatus `gorm:"column:status;size:32;not null;default:pending;index" json:"status"`
	CreatedAt      time.Time   `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName binds Order to its table.
func (Order) TableName() string {
	return "orders"
}

// FullName joins first and last name.
func (o Order) FullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// OrderNote is an append-only admin annotation on an order.
type OrderNote struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	OrderID   string    `gorm:"column:order_id;size:64;not null;index" json:"order_id"`
	NoteText  string    `gorm:"column:note_text;type:text;not null" json:"note_text"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName binds OrderNote to its table.
func (OrderNote) TableName() string {
	return "order_notes"
}

// Models lists every persisted type owned by this package.
func Models() []any {
	return []any{&ContactRequest{}, &ContactRequestNote{}, &Order{}, &OrderNote{}}
}
